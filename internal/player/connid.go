package player

import (
	"math"

	"go.uber.org/atomic"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// ConnectionID 为玩家注册时分配的进程内唯一标识。
type ConnectionID uint32

// InvalidConnectionID 永远不会被分配。
const InvalidConnectionID ConnectionID = 0

// UID 为账号 ID。
type UID uint32

// ConnectionIDSequence 是无锁的连接 ID 分配器。
// 分配结果从 1 开始严格递增且不回绕，耗尽后返回 merr.ErrConnectionIDExhausted。
type ConnectionIDSequence struct {
	last atomic.Uint32
}

// Next 分配下一个连接 ID，可并发调用。
func (s *ConnectionIDSequence) Next() (ConnectionID, error) {
	for {
		cur := s.last.Load()
		if cur == math.MaxUint32 {
			return InvalidConnectionID, merr.WrapErrConnectionIDExhausted(cur)
		}
		if s.last.CompareAndSwap(cur, cur+1) {
			return ConnectionID(cur + 1), nil
		}
	}
}

// Last 返回最近一次分配的 ID，尚未分配时为 InvalidConnectionID。
func (s *ConnectionIDSequence) Last() ConnectionID {
	return ConnectionID(s.last.Load())
}
