//go:build !unix && !windows

package filelock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("filelock: advisory locks are not supported on this platform")

func tryLock(*os.File) (bool, error) { return false, errUnsupported }

func unlock(*os.File) error { return errUnsupported }
