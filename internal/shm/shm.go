// Package shm moves frames through POSIX shared memory objects, the
// out-of-band path used by the overlay renderer.
package shm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLen is the longest accepted object name, leading slash included.
const MaxNameLen = 254

// ErrUnsupported is returned on platforms without /dev/shm.
var ErrUnsupported = errors.New("shared memory frames are not supported on this platform")

// NewName returns a fresh object name.
func NewName() string {
	return "/simlink-" + uuid.NewString()
}

// ValidName reports whether name is a single-component object name.
func ValidName(name string) error {
	switch {
	case len(name) < 2 || name[0] != '/':
		return fmt.Errorf("shm name %q must start with / and name an object", name)
	case len(name) > MaxNameLen:
		return fmt.Errorf("shm name is %d bytes, limit %d", len(name), MaxNameLen)
	case strings.ContainsRune(name[1:], '/'), strings.ContainsRune(name, 0):
		return fmt.Errorf("shm name %q must not contain / or NUL after the prefix", name)
	case name == "/." || name == "/..":
		return fmt.Errorf("shm name %q is reserved", name)
	}
	return nil
}
