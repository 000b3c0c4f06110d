//go:build linux

package server

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials returns the pid and uid of the process on the other end
// of a unix socket connection.
func peerCredentials(conn net.Conn) (pid int32, uid uint32, ok bool) {
	uc, isUnix := conn.(*net.UnixConn)
	if !isUnix {
		return 0, 0, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, 0, false
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return 0, 0, false
	}
	return cred.Pid, cred.Uid, true
}
