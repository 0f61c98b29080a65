//go:build !windows

// pkg/pager/lock_unix.go
package pager

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes the process-exclusive advisory lock described in spec §5:
// a second process opening the same database file fails fast instead of
// corrupting it.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrDatabaseLocked
		}
		return err
	}
	return nil
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
