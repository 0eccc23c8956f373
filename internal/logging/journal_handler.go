package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// identifier is the SYSLOG_IDENTIFIER attached to every journal entry.
const identifier = "devnode"

// JournalHandler writes records as native journal entries. Attribute keys
// become upper-case journal fields, so `journalctl PROJECT_ID=site` filters
// one project's logs.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
	send   func(message string, priority journal.Priority, fields map[string]string) error
}

// NewJournalHandler creates a handler that sends to the local journal.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": identifier},
		send:   journal.Send,
	}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		putField(fields, h.prefix, a)
		return true
	})

	if err := h.send(r.Message, priority(r.Level), fields); err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v: %s\n", err, r.Message)
		return err
	}
	return nil
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		putField(c.fields, c.prefix, a)
	}
	return c
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = fieldName(h.prefix, name) + "_"
	return c
}

func (h *JournalHandler) clone() *JournalHandler {
	c := *h
	c.fields = make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		c.fields[k] = v
	}
	return &c
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// putField flattens a into fields. Groups nest with an underscore.
func putField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = fieldName(prefix, a.Key) + "_"
		}
		for _, g := range a.Value.Group() {
			putField(fields, inner, g)
		}
		return
	}

	key := fieldName(prefix, a.Key)
	if key == "" {
		return
	}
	switch a.Value.Kind() {
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(a.Value.Float64(), 'g', -1, 64)
	default:
		fields[key] = a.Value.String()
	}
}

// fieldName builds a valid journal field name: upper-case letters, digits
// and underscores, not starting with an underscore or digit.
func fieldName(prefix, key string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, c := range strings.ToUpper(key) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_0123456789")
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}

// stdoutIsJournal reports whether stdout is already connected to journald,
// as announced by systemd through JOURNAL_STREAM=<dev>:<inode>.
func stdoutIsJournal() bool {
	stream := os.Getenv("JOURNAL_STREAM")
	if stream == "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stream == fmt.Sprintf("%d:%d", st.Dev, st.Ino)
}
