//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package transport

import (
	"context"
	"net"
)

func probes() []probe {
	return nil
}

func listenWithBacklog(addr string, _ int) (net.Listener, error) {
	return listenPortable(context.Background(), addr)
}
