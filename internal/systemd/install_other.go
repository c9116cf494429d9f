//go:build !linux

package systemd

import (
	"context"
	"errors"
)

// Reload is only available on Linux.
func Reload(ctx context.Context, path string, enable bool) error {
	return errors.New("systemd is not available on this platform")
}
