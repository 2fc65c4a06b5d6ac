// Package binwire implements the fixed-header binary framing used by the
// datagram transport.
//
// Ownership boundary:
// - frame type and header primitives
// - NUL-terminated field encoding/decoding
// - re-rendering inbound frames into the textwire grammar for normalization
package binwire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hpetrik/chatproto/internal/protocol"
	"github.com/hpetrik/chatproto/internal/protocol/textwire"
)

// FrameType is the first byte of every datagram frame.
type FrameType byte

const (
	TypeConfirm FrameType = 0x00
	TypeReply   FrameType = 0x01
	TypeAuth    FrameType = 0x02
	TypeJoin    FrameType = 0x03
	TypeMsg     FrameType = 0x04
	TypePing    FrameType = 0xFD
	TypeErr     FrameType = 0xFE
	TypeBye     FrameType = 0xFF
)

func (t FrameType) String() string {
	switch t {
	case TypeConfirm:
		return "CONFIRM"
	case TypeReply:
		return "REPLY"
	case TypeAuth:
		return "AUTH"
	case TypeJoin:
		return "JOIN"
	case TypeMsg:
		return "MSG"
	case TypePing:
		return "PING"
	case TypeErr:
		return "ERR"
	case TypeBye:
		return "BYE"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// HeaderSize covers the type byte and the 16-bit message identifier.
const HeaderSize = 3

// replyExtraSize covers the result byte and the 16-bit correlated identifier
// that REPLY frames carry before their content field.
const replyExtraSize = 3

// Frame is one decoded datagram.
type Frame struct {
	Type   FrameType
	ID     uint16
	Result byte   // REPLY only: 1 success, 0 failure
	RefID  uint16 // REPLY only: identifier of the correlated request
	Fields []string
}

// EncodeCommand renders cmd as one datagram frame carrying id. Fields are
// validated before any bytes are produced.
func EncodeCommand(id uint16, cmd protocol.Command) ([]byte, error) {
	if cmd == nil {
		return nil, protocol.ErrMalformed
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	switch c := cmd.(type) {
	case protocol.AuthCommand:
		return appendFrame(TypeAuth, id, c.Username, c.DisplayName, c.Secret), nil
	case protocol.JoinCommand:
		return appendFrame(TypeJoin, id, c.Channel, c.DisplayName), nil
	case protocol.MsgCommand:
		return appendFrame(TypeMsg, id, c.DisplayName, c.Content), nil
	case protocol.ByeCommand:
		return appendFrame(TypeBye, id, c.DisplayName), nil
	case protocol.ErrCommand:
		return appendFrame(TypeErr, id, c.DisplayName, c.Content), nil
	default:
		return nil, fmt.Errorf("%w: command %T", protocol.ErrUnexpectedFrame, cmd)
	}
}

// EncodeConfirm renders a CONFIRM frame. The identifier bytes carry the
// identifier being confirmed, not a freshly allocated one.
func EncodeConfirm(refID uint16) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(TypeConfirm)
	binary.BigEndian.PutUint16(buf[1:3], refID)
	return buf
}

// Decode parses one datagram. Frames shorter than the minimum for their
// declared type are rejected rather than read out of bounds.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", protocol.ErrTruncated, len(buf))
	}
	f := Frame{
		Type: FrameType(buf[0]),
		ID:   binary.BigEndian.Uint16(buf[1:3]),
	}
	rest := buf[HeaderSize:]

	switch f.Type {
	case TypeConfirm, TypePing:
		if len(rest) != 0 {
			return Frame{}, fmt.Errorf("%w: trailing bytes after %s frame", protocol.ErrMalformed, f.Type)
		}
		return f, nil
	case TypeReply:
		if len(rest) < replyExtraSize {
			return Frame{}, fmt.Errorf("%w: short REPLY frame", protocol.ErrTruncated)
		}
		f.Result = rest[0]
		if f.Result > 1 {
			return Frame{}, fmt.Errorf("%w: REPLY result byte 0x%02x", protocol.ErrMalformed, f.Result)
		}
		f.RefID = binary.BigEndian.Uint16(rest[1:3])
		return decodeFields(f, rest[replyExtraSize:], 1)
	case TypeAuth:
		return decodeFields(f, rest, 3)
	case TypeJoin, TypeMsg, TypeErr:
		return decodeFields(f, rest, 2)
	case TypeBye:
		return decodeFields(f, rest, 1)
	default:
		return Frame{}, fmt.Errorf("%w: type byte 0x%02x", protocol.ErrUnexpectedFrame, buf[0])
	}
}

// Normalize re-renders an inbound application frame into the exact textual
// shape the stream codec decodes and feeds it through that decoder, so both
// transports produce identical NormalizedMessages for identical events.
func Normalize(f Frame) (protocol.NormalizedMessage, error) {
	var line string
	switch f.Type {
	case TypeReply:
		result := "NOK"
		if f.Result == 1 {
			result = "OK"
		}
		line = "REPLY " + result + " IS " + f.Fields[0]
	case TypeMsg:
		line = "MSG FROM " + f.Fields[0] + " IS " + f.Fields[1]
	case TypeErr:
		line = "ERROR FROM " + f.Fields[0] + " IS " + f.Fields[1]
	case TypeBye:
		line = "BYE FROM " + f.Fields[0]
	default:
		return protocol.NormalizedMessage{}, fmt.Errorf("%w: cannot normalize %s frame", protocol.ErrUnexpectedFrame, f.Type)
	}
	return textwire.DecodeLine(line)
}

func appendFrame(t FrameType, id uint16, fields ...string) []byte {
	size := HeaderSize
	for _, f := range fields {
		size += len(f) + 1
	}
	buf := make([]byte, HeaderSize, size)
	buf[0] = byte(t)
	binary.BigEndian.PutUint16(buf[1:3], id)
	for _, f := range fields {
		buf = append(buf, f...)
		buf = append(buf, 0x00)
	}
	return buf
}

// decodeFields splits rest into NUL-terminated fields and requires exactly
// want of them. A final field without its terminator is a truncated frame.
func decodeFields(f Frame, rest []byte, want int) (Frame, error) {
	fields := make([]string, 0, want)
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, 0x00)
		if i < 0 {
			return Frame{}, fmt.Errorf("%w: unterminated field in %s frame", protocol.ErrTruncated, f.Type)
		}
		fields = append(fields, string(rest[:i]))
		rest = rest[i+1:]
	}
	if len(fields) != want {
		return Frame{}, fmt.Errorf("%w: %s frame has %d fields, want %d",
			protocol.ErrMalformed, f.Type, len(fields), want)
	}
	f.Fields = fields
	return f, nil
}
