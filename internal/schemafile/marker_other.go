//go:build !linux

package schemafile

func setXattr(string, bool) error {
	return errXattrUnsupported
}

func getXattr(string) (bool, error) {
	return false, errXattrUnsupported
}
