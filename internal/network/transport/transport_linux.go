//go:build linux

package transport

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func probes() []probe {
	return []probe{{kind: KindEpoll, available: epollAvailable}}
}

func epollAvailable() bool {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

// listenWithBacklog 直接通过系统调用创建监听套接字，使 listen(2) 使用配置的 backlog。
func listenWithBacklog(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, merr.WrapErrBindFailed(addr, err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}

	family, sa := sockaddr(tcpAddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, merr.WrapErrBindFailed(addr, os.NewSyscallError("socket", err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, merr.WrapErrBindFailed(addr, os.NewSyscallError("setsockopt", err))
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, merr.WrapErrBindFailed(addr, os.NewSyscallError("bind", err))
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, merr.WrapErrBindFailed(addr, os.NewSyscallError("listen", err))
	}

	// FileListener 会复制 fd，原文件需要关闭。
	f := os.NewFile(uintptr(fd), "tcp:"+addr)
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, merr.WrapErrBindFailed(addr, err)
	}
	return ln, nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if addr.IP == nil || addr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 := addr.IP.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}
