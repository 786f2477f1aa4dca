package server

import (
	"bytes"

	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/router"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Protocol 为客户端协议的编解码与分发，由上层实现。
// 所有方法都在连接所属的事件循环上调用，不应阻塞。
type Protocol interface {
	// Greet 在连接建立后调用一次，通常用于下发握手包。
	Greet(sess session.Session) error
	// DecodeLogin 从连接的第一帧中解析会话密钥。
	DecodeLogin(frame framer.Frame) (string, error)
	// Dispatch 处理已登录玩家的后续帧，返回错误时连接会被关闭。
	Dispatch(p *player.Player, frame framer.Frame) error
}

// RawProtocol 是不加密的最简协议：
// 登录帧的负载为 1 字节包序号加会话密钥，尾部的 0 被忽略；
// 不发送握手包。登录后的帧交给 Router 按包 ID 分发，Router 为 nil 时被丢弃。
type RawProtocol struct {
	Router *router.Router
}

var _ Protocol = RawProtocol{}

func (RawProtocol) Greet(session.Session) error {
	return nil
}

func (RawProtocol) DecodeLogin(frame framer.Frame) (string, error) {
	payload := frame.Payload()
	if len(payload) < 2 {
		return "", merr.WrapErrFrameMalformed("login frame without session key")
	}
	return string(bytes.TrimRight(payload[1:], "\x00")), nil
}

func (p RawProtocol) Dispatch(pl *player.Player, frame framer.Frame) error {
	if p.Router == nil {
		return nil
	}
	return p.Router.Handle(pl, frame)
}

// EncodeRawLogin 按 RawProtocol 的格式生成登录帧。
func EncodeRawLogin(cfg framer.Config, key string) ([]byte, error) {
	body := append([]byte{0}, key...)
	return framer.AppendFrame(nil, cfg, make([]byte, cfg.LengthFieldOffset), body)
}
