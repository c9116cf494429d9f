//go:build linux

package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Reload asks the user's systemd manager to reread unit files and, if enable
// is set, enables the unit at path.
func Reload(ctx context.Context, path string, enable bool) error {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if enable {
		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{path}, false, true); err != nil {
			return fmt.Errorf("enabling %s: %w", path, err)
		}
	}
	return nil
}
