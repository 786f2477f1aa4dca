package session

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Manager 维护当前所有存活会话的索引。
//
// 职责说明：
//   - 只负责会话的注册、查询和移除，不直接创建或关闭底层连接；
//   - 接入层在连接建立时 Register，在会话关闭后 Unregister；
//   - 停服时通过 Range 关闭所有存活会话，使断线清理逻辑得以执行。
type Manager interface {
	// Register 将一个会话注册到管理器中，ID 重复时返回错误且不覆盖旧会话。
	Register(sess Session) error

	// Get 根据 session id 查找会话。
	Get(id uint64) (Session, bool)

	// Unregister 移除指定 id 的会话，返回是否确实移除。
	Unregister(id uint64) bool

	// Range 遍历当前所有存活会话，fn 返回 false 时中断遍历。
	// 遍历期间允许并发注册和移除。
	Range(fn func(sess Session) bool)

	// Count 返回当前已注册的会话数量。
	Count() int
}

// BaseManager 提供了基于 sync.Map 的 Manager 实现。
type BaseManager struct {
	sessions sync.Map
	count    atomic.Int64
}

var _ Manager = (*BaseManager)(nil)

// NewBaseManager 创建一个空的 BaseManager。
func NewBaseManager() *BaseManager {
	return &BaseManager{}
}

// Register 实现 Manager.Register。
func (m *BaseManager) Register(sess Session) error {
	if sess == nil {
		return merr.WrapErrParameterMissing("session")
	}
	if _, loaded := m.sessions.LoadOrStore(sess.ID(), sess); loaded {
		return merr.WrapErrParameterInvalidMsg("session %d already registered", sess.ID())
	}
	m.count.Inc()
	return nil
}

// Get 实现 Manager.Get。
func (m *BaseManager) Get(id uint64) (Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Session), true
}

// Unregister 实现 Manager.Unregister。
func (m *BaseManager) Unregister(id uint64) bool {
	if _, loaded := m.sessions.LoadAndDelete(id); loaded {
		m.count.Dec()
		return true
	}
	return false
}

// Range 实现 Manager.Range。
func (m *BaseManager) Range(fn func(sess Session) bool) {
	if fn == nil {
		return
	}
	m.sessions.Range(func(_, v any) bool {
		return fn(v.(Session))
	})
}

// Count 实现 Manager.Count。
func (m *BaseManager) Count() int {
	return int(m.count.Load())
}
