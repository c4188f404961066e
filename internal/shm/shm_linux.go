//go:build linux

package shm

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// dir is where Linux exposes POSIX shared memory objects.
var dir = "/dev/shm"

func objectPath(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name[1:]), nil
}

// Write creates or truncates the object and copies data into it.
func Write(name string, data []byte) error {
	path, err := objectPath(name)
	if err != nil {
		return err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return fmt.Errorf("shm open %s: %w", name, err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(len(data))); err != nil {
		return fmt.Errorf("shm truncate %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	mem, err := unix.Mmap(fd, 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("shm mmap %s: %w", name, err)
	}
	copy(mem, data)
	syncErr := unix.Msync(mem, unix.MS_SYNC)
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("shm munmap %s: %w", name, err)
	}
	if syncErr != nil {
		return fmt.Errorf("shm msync %s: %w", name, syncErr)
	}
	return nil
}

// Read copies size bytes out of the object.
func Read(name string, size int) ([]byte, error) {
	path, err := objectPath(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm open %s: %w", name, err)
	}
	defer unix.Close(fd)
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("shm stat %s: %w", name, err)
	}
	if st.Size < int64(size) {
		return nil, fmt.Errorf("shm %s holds %d bytes, need %d", name, st.Size, size)
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm mmap %s: %w", name, err)
	}
	copy(out, mem)
	if err := unix.Munmap(mem); err != nil {
		return nil, fmt.Errorf("shm munmap %s: %w", name, err)
	}
	return out, nil
}

// Unlink removes the object. A missing object is not an error.
func Unlink(name string) error {
	path, err := objectPath(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("shm unlink %s: %w", name, err)
	}
	return nil
}

// Supported reports whether frames can use shared memory here.
func Supported() bool {
	return unix.Access(dir, unix.W_OK) == nil
}
