package framer

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Config 描述基于长度字段的帧格式。
//
// 一帧的总长度 = LengthFieldOffset + LengthFieldLength + 长度字段的值 + LengthAdjustment。
// 帧按原样返回，不剥离头部。
type Config struct {
	// MaxFrameLength 为允许的最大帧长度（含头部），超过即视为协议错误。
	MaxFrameLength int
	// LengthFieldOffset 为长度字段在帧内的偏移。
	LengthFieldOffset int
	// LengthFieldLength 为长度字段占用的字节数，支持 1、2、4。
	LengthFieldLength int
	// LengthAdjustment 为加在长度字段值上的修正量。
	LengthAdjustment int
	// ByteOrder 为长度字段的字节序，为 nil 时使用小端。
	ByteOrder binary.ByteOrder
}

// DefaultMaxFrameLength 为客户端协议的最大帧长度。
const DefaultMaxFrameLength = 10000

// PangyaConfig 返回客户端协议使用的帧格式：
// 1 字节密钥索引 + 2 字节小端长度 + 1 字节包序号 + 长度字段指定的字节数。
func PangyaConfig(maxFrameLength int) Config {
	if maxFrameLength <= 0 {
		maxFrameLength = DefaultMaxFrameLength
	}
	return Config{
		MaxFrameLength:    maxFrameLength,
		LengthFieldOffset: 1,
		LengthFieldLength: 2,
		LengthAdjustment:  1,
		ByteOrder:         binary.LittleEndian,
	}
}

func (c Config) headerLength() int {
	return c.LengthFieldOffset + c.LengthFieldLength
}

func (c Config) byteOrder() binary.ByteOrder {
	if c.ByteOrder == nil {
		return binary.LittleEndian
	}
	return c.ByteOrder
}

// Frame 为一条完整的帧。
type Frame struct {
	// Raw 为包含头部的完整字节。
	Raw []byte
	// HeaderLength 为 Raw 中长度字段结束的位置。
	HeaderLength int
}

// Payload 返回长度字段之后的字节。
func (f Frame) Payload() []byte {
	return f.Raw[f.HeaderLength:]
}

// LengthFieldFramer 从字节流中切分帧，不可并发使用。
type LengthFieldFramer struct {
	cfg    Config
	r      *bufio.Reader
	header []byte
}

// NewLengthFieldFramer 创建一个切分 r 的帧解析器。
func NewLengthFieldFramer(r io.Reader, cfg Config) *LengthFieldFramer {
	if cfg.MaxFrameLength <= 0 {
		cfg.MaxFrameLength = DefaultMaxFrameLength
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 4096)
	}
	return &LengthFieldFramer{
		cfg:    cfg,
		r:      br,
		header: make([]byte, cfg.headerLength()),
	}
}

// ReadFrame 读取下一帧。
// 对端正常关闭且没有残留字节时返回 io.EOF；帧超长或长度非法时返回
// merr.ErrFrameTooLarge 或 merr.ErrFrameMalformed，此时流已无法继续解析。
func (f *LengthFieldFramer) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(f.r, f.header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, merr.WrapErrFrameMalformed("truncated header")
		}
		return Frame{}, err
	}

	length, err := f.frameLength(f.header)
	if err != nil {
		return Frame{}, err
	}

	raw := make([]byte, length)
	copy(raw, f.header)
	if _, err := io.ReadFull(f.r, raw[len(f.header):]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, merr.WrapErrFrameMalformed("truncated body")
		}
		return Frame{}, err
	}
	return Frame{Raw: raw, HeaderLength: len(f.header)}, nil
}

func (f *LengthFieldFramer) frameLength(header []byte) (int, error) {
	field := header[f.cfg.LengthFieldOffset:]
	order := f.cfg.byteOrder()

	var value int
	switch f.cfg.LengthFieldLength {
	case 1:
		value = int(field[0])
	case 2:
		value = int(order.Uint16(field))
	case 4:
		value = int(order.Uint32(field))
	default:
		return 0, merr.WrapErrFrameMalformed("unsupported length field size")
	}

	total := f.cfg.headerLength() + value + f.cfg.LengthAdjustment
	if total < f.cfg.headerLength() {
		return 0, merr.WrapErrFrameMalformed("negative frame length")
	}
	if total > f.cfg.MaxFrameLength {
		return 0, merr.WrapErrFrameTooLarge(total, f.cfg.MaxFrameLength)
	}
	return total, nil
}

// AppendFrame 按 cfg 的格式为 body 生成一帧，prefix 为长度字段之前的字节。
// 长度字段的值为 len(body) - LengthAdjustment。
func AppendFrame(dst []byte, cfg Config, prefix []byte, body []byte) ([]byte, error) {
	if len(prefix) != cfg.LengthFieldOffset {
		return dst, merr.WrapErrFrameMalformed("prefix length does not match length field offset")
	}
	value := len(body) - cfg.LengthAdjustment
	if value < 0 {
		return dst, merr.WrapErrFrameMalformed("body shorter than length adjustment")
	}
	total := cfg.headerLength() + len(body)
	if cfg.MaxFrameLength > 0 && total > cfg.MaxFrameLength {
		return dst, merr.WrapErrFrameTooLarge(total, cfg.MaxFrameLength)
	}

	dst = append(dst, prefix...)
	order := cfg.byteOrder()
	switch cfg.LengthFieldLength {
	case 1:
		if value > 0xff {
			return dst, merr.WrapErrFrameTooLarge(total, cfg.MaxFrameLength)
		}
		dst = append(dst, byte(value))
	case 2:
		if value > 0xffff {
			return dst, merr.WrapErrFrameTooLarge(total, cfg.MaxFrameLength)
		}
		dst = order.AppendUint16(dst, uint16(value))
	case 4:
		dst = order.AppendUint32(dst, uint32(value))
	default:
		return dst, merr.WrapErrFrameMalformed("unsupported length field size")
	}
	return append(dst, body...), nil
}
