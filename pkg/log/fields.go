package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldNameModule       = "module"
	FieldNameComponent    = "component"
	FieldNameConnectionID = "connectionID"
	FieldNameUID          = "uid"
	FieldNameSessionID    = "sessionID"
	FieldNameRemoteAddr   = "remoteAddr"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldConnectionID 返回玩家连接 ID 字段。
func FieldConnectionID(id uint32) zap.Field {
	return zap.Uint32(FieldNameConnectionID, id)
}

func FieldUID(uid uint32) zap.Field {
	return zap.Uint32(FieldNameUID, uid)
}

// FieldSessionID 返回网络会话 ID 字段，会话 ID 在连接建立时分配，早于连接 ID。
func FieldSessionID(id uint64) zap.Field {
	return zap.Uint64(FieldNameSessionID, id)
}

func FieldRemoteAddr(addr string) zap.Field {
	return zap.String(FieldNameRemoteAddr, addr)
}

// FieldMessage 返回一个包含消息对象的 zap 字段。
func FieldMessage(msg zapcore.ObjectMarshaler) zap.Field {
	return zap.Object("message", msg)
}
