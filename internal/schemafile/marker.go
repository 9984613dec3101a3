package schemafile

import (
	"errors"
	"os"
	"path/filepath"
)

// markerAttr is the extended attribute flagging an incomplete schema.
const markerAttr = "user.schema_error"

var errXattrUnsupported = errors.New("extended attributes not supported")

// sidecarPath is used instead of the attribute where the filesystem has no
// user extended attributes.
func sidecarPath(schemaFile string) string {
	return filepath.Join(filepath.Dir(schemaFile), "."+filepath.Base(schemaFile)+".incomplete")
}

func setIncomplete(schemaFile string, on bool) error {
	err := setXattr(schemaFile, on)
	if err == nil {
		// Drop a sidecar left by an earlier run on another filesystem.
		if rmErr := os.Remove(sidecarPath(schemaFile)); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
		return nil
	}
	if !errors.Is(err, errXattrUnsupported) {
		return err
	}
	if !on {
		if err := os.Remove(sidecarPath(schemaFile)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(sidecarPath(schemaFile), nil, 0644)
}

func isIncomplete(schemaFile string) bool {
	if on, err := getXattr(schemaFile); err == nil && on {
		return true
	}
	_, err := os.Stat(sidecarPath(schemaFile))
	return err == nil
}
