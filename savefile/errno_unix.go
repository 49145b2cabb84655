//go:build !windows

package savefile

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC)
}

func isQuota(err error) bool {
	return errors.Is(err, unix.EDQUOT)
}
