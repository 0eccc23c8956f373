// Package systemd restarts devnode's own unit over D-Bus after a self-update.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager handles systemd unit lifecycle operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the user bus, or the system bus when user is false.
func NewManager(ctx context.Context, user bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Manager{conn: conn}, nil
}

// ServiceStatus returns the ActiveState of a unit.
func (m *Manager) ServiceStatus(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState %s", prop.Value.String())
	}
	return state, nil
}

// RestartService restarts a unit in replace mode and waits for the job result.
func (m *Manager) RestartService(ctx context.Context, unit string) error {
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return err
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart %s: job %s", unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// UnitRestarter restarts a named unit. It satisfies updater.Restarter.
type UnitRestarter struct {
	Unit string
	User bool
}

// Restart connects, restarts the unit and disconnects. The caller is usually
// the unit itself, so the job result may never arrive.
func (r UnitRestarter) Restart(ctx context.Context) error {
	m, err := NewManager(ctx, r.User)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer m.Close()

	state, err := m.ServiceStatus(ctx, r.Unit)
	if err != nil {
		return fmt.Errorf("query %s: %w", r.Unit, err)
	}
	if state != "active" && state != "reloading" {
		return fmt.Errorf("unit %s is %s, not restarting", r.Unit, state)
	}
	return m.RestartService(ctx, r.Unit)
}
