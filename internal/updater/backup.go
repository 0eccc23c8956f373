// Package updater swaps the devnode binary for a newer GitHub release and
// keeps one backup for rollback.
package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/devnode/internal/logging"
)

const (
	backupFilename     = "devnode.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
	SHA256    string    `json:"sha256"`
}

type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger logging.Logger
}

func defaultBackupDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(cache, "devnode", "backup"), nil
}

func newBackupManager(dir string, logger logging.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.load()
	return m, nil
}

func (m *backupManager) binaryPath() string { return filepath.Join(m.dir, backupFilename) }
func (m *backupManager) infoPath() string   { return filepath.Join(m.dir, backupInfoFilename) }

func (m *backupManager) load() {
	data, err := os.ReadFile(m.infoPath())
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(m.binaryPath()); err != nil {
		m.logger.Warn("Backup file missing", "path", m.binaryPath())
		return
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Loaded backup info", "version", info.Version)
}

// create copies execPath into the backup directory and records its version
// and digest.
func (m *backupManager) create(execPath, version string) error {
	sum, err := copyFile(execPath, m.binaryPath())
	if err != nil {
		return fmt.Errorf("failed to back up executable: %w", err)
	}

	info := backupInfo{Version: version, CreatedAt: time.Now(), ExecPath: execPath, SHA256: sum}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal backup info: %w", err)
	}
	if err := os.WriteFile(m.infoPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", version, "path", m.binaryPath())
	return nil
}

// restore copies the backup over the executable it was taken from. A backup
// whose digest no longer matches is refused so a damaged file never replaces
// a working binary.
func (m *backupManager) restore() error {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return fmt.Errorf("no backup available")
	}

	if info.SHA256 != "" {
		sum, err := fileDigest(m.binaryPath())
		if err != nil {
			return fmt.Errorf("failed to verify backup: %w", err)
		}
		if sum != info.SHA256 {
			return fmt.Errorf("backup digest mismatch: have %s, recorded %s", sum, info.SHA256)
		}
	}

	if _, err := copyFile(m.binaryPath(), info.ExecPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	m.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (m *backupManager) hasBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info != nil
}

func (m *backupManager) version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Version
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile writes src to a temp file next to dst and renames it into place,
// so a running binary is replaced rather than truncated. It returns the
// SHA-256 of the copied bytes.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
