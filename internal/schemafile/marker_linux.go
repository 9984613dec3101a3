//go:build linux

package schemafile

import (
	"errors"

	"golang.org/x/sys/unix"
)

func setXattr(path string, on bool) error {
	var err error
	if on {
		err = unix.Setxattr(path, markerAttr, []byte("1"), 0)
	} else {
		err = unix.Removexattr(path, markerAttr)
		if errors.Is(err, unix.ENODATA) {
			err = nil
		}
	}
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EPERM) {
		return errXattrUnsupported
	}
	return err
}

func getXattr(path string) (bool, error) {
	buf := make([]byte, 8)
	n, err := unix.Getxattr(path, markerAttr, buf)
	switch {
	case errors.Is(err, unix.ENODATA):
		return false, nil
	case err != nil:
		return false, err
	}
	return n > 0 && buf[0] == '1', nil
}
