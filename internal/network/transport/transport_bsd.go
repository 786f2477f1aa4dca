//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package transport

import (
	"context"
	"net"

	"golang.org/x/sys/unix"
)

func probes() []probe {
	return []probe{{kind: KindKqueue, available: kqueueAvailable}}
}

func kqueueAvailable() bool {
	fd, err := unix.Kqueue()
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

func listenWithBacklog(addr string, _ int) (net.Listener, error) {
	return listenPortable(context.Background(), addr)
}
