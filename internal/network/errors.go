package network

// Stage 表示连接生命周期中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，同时作为监控指标的 stage 标签。
type Stage string

const (
	StageAccept   Stage = "accept"   // 接受新连接
	StageActive   Stage = "active"   // 连接建立后的初始化
	StageRead     Stage = "read"     // 读取底层字节
	StageDecode   Stage = "decode"   // 字节流 -> 帧
	StageDispatch Stage = "dispatch" // 帧 -> 业务处理
	StageSend     Stage = "send"     // 写出到对端
	StageClose    Stage = "close"    // 关闭与清理
)

func (s Stage) String() string {
	return string(s)
}
