//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func peerPID(raw syscall.RawConn) int {
	var (
		cred *unix.Ucred
		err  error
	)
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, err = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || err != nil || cred == nil {
		return 0
	}
	return int(cred.Pid)
}
