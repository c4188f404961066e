//go:build !linux

package shm

func Write(name string, data []byte) error {
	if err := ValidName(name); err != nil {
		return err
	}
	return ErrUnsupported
}

func Read(name string, size int) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func Unlink(name string) error {
	return ValidName(name)
}

func Supported() bool { return false }
