package router

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// routeHeaderLength 为帧负载中包序号与包 ID 占用的字节数。
const routeHeaderLength = 3

// Handler 是处理一类客户端包的函数。
//
// 说明：
//   - p   ：发送该包的已登录玩家，响应通过 p.Send 发送；
//   - body：包 ID 之后的字节，解码由 Handler 自行完成。
type Handler func(p *player.Player, body []byte) error

// Router 维护包 ID 到 Handler 的映射。
//
// 帧负载的布局为：1 字节包序号 + 2 字节小端包 ID + 包体。
// Register 与 Handle 可以并发调用，通常在启动时注册完毕。
type Router struct {
	mu       sync.RWMutex
	handlers map[uint16]Handler
	fallback Handler
}

func New() *Router {
	return &Router{
		handlers: make(map[uint16]Handler),
	}
}

// Register 为包 ID 注册 Handler，同一 ID 不允许重复注册。
func (r *Router) Register(id uint16, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[id]; exists {
		return merr.WrapErrParameterInvalidMsg("packet id 0x%04x already registered", id)
	}
	r.handlers[id] = h
	return nil
}

// SetFallback 设置未注册包 ID 的处理函数，为 nil 时未知包返回错误。
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// PacketID 返回帧携带的包 ID。
func PacketID(frame framer.Frame) (uint16, error) {
	payload := frame.Payload()
	if len(payload) < routeHeaderLength {
		return 0, merr.WrapErrFrameMalformed("payload shorter than packet header")
	}
	return binary.LittleEndian.Uint16(payload[1:routeHeaderLength]), nil
}

// Handle 按包 ID 调用对应的 Handler。
func (r *Router) Handle(p *player.Player, frame framer.Frame) error {
	id, err := PacketID(frame)
	if err != nil {
		return err
	}

	r.mu.RLock()
	h, ok := r.handlers[id]
	if !ok {
		h = r.fallback
	}
	r.mu.RUnlock()
	if h == nil {
		return merr.WrapErrOperationNotSupported(fmt.Sprintf("packet 0x%04x", id))
	}

	if err := h(p, frame.Payload()[routeHeaderLength:]); err != nil {
		return errors.Wrapf(err, "handle packet 0x%04x", id)
	}
	return nil
}
