package session

import (
	"context"
	"net"
)

// Executor 串行执行投递给它的任务。
//
// 约定：
//   - 同一个 Executor 上的任务按投递顺序执行，且不会并发；
//   - Execute 返回 false 表示 Executor 已停止接收任务，任务不会被执行。
type Executor interface {
	Execute(task func()) bool
}

// Session 抽象了一条网络会话/连接。
//
// 约定：
//   - 每个 Session 对应一条底层 TCP 连接。
//   - Session ID 使用 64 位无符号整型，在进程内全局唯一，连接建立时即分配。
//   - 框架层只关心会话本身，不关心“玩家”等具体业务概念。
type Session interface {
	// ID 返回该会话在进程内的全局唯一标识。
	//
	// 说明：
	//   - 由接入层在接受连接时分配（自增 uint64）；
	//   - 与登录成功后分配的玩家连接 ID 不同，后者只在注册时才产生。
	ID() uint64

	// Context 返回与该会话关联的上下文，会话关闭时 Context.Done() 被触发。
	Context() context.Context

	// RemoteAddr 返回远端地址（客户端地址）。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址（服务器监听地址）。
	LocalAddr() net.Addr

	// Send 将一帧完整的字节投递到发送队列。
	//
	// 行为：
	//   - 不会阻塞调用方，由独立的发送协程按投递顺序写出；
	//   - 会话已关闭时返回 merr.ErrSessionClosed；
	//   - 发送队列溢出时会话被关闭，同样返回 merr.ErrSessionClosed。
	Send(data []byte) error

	// Close 主动关闭该会话。
	//
	// 说明：
	//   - 关闭底层连接并取消 Context；
	//   - 已注册的关闭回调在会话绑定的 Executor 上按注册顺序执行一次；
	//   - 多次调用是幂等的。
	Close() error

	// Closed 返回会话是否已关闭。
	Closed() bool

	// OnClose 注册一个关闭回调。
	//
	// 返回：
	//   - true ：会话尚未关闭，回调将在关闭时执行；
	//   - false：会话已经关闭，回调已在当前协程中立即执行。
	//
	// 说明：
	//   - 判断与注册在同一把锁内完成，与 Close 之间不存在窗口期，
	//     因此回调要么随关闭执行，要么立即执行，不会丢失。
	OnClose(hook func()) bool

	// Execute 将任务投递到会话绑定的 Executor 上执行。
	//
	// 说明：
	//   - 同一会话的所有事件都在同一个 Executor 上串行执行；
	//   - 从阻塞任务回到会话所在事件循环时应使用该方法。
	Execute(task func()) bool

	// SetAttachment 为会话绑定一个业务对象（例如登录后的玩家）。
	SetAttachment(v any)

	// Attachment 返回通过 SetAttachment 绑定的对象，未绑定时返回 nil。
	Attachment() any
}
