package savefile

import (
	"errors"
	"syscall"
)

const errorDiskFull syscall.Errno = 112

func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, errorDiskFull)
}

func isQuota(err error) bool {
	return false
}
