// Package textwire implements the line-delimited text framing used by the
// stream transport. The datagram transport re-renders its frames into this
// grammar and parses them here, so both transports share one interpretation
// path.
package textwire

import (
	"fmt"
	"strings"

	"github.com/hpetrik/chatproto/internal/protocol"
)

// Terminator ends every stream frame.
const Terminator = "\r\n"

// MaxLineBytes bounds one frame including the terminator.
const MaxLineBytes = 2048

// EncodeCommand renders cmd as one terminated wire line. Fields are validated
// before any bytes are produced.
func EncodeCommand(cmd protocol.Command) (string, error) {
	if cmd == nil {
		return "", protocol.ErrMalformed
	}
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	switch c := cmd.(type) {
	case protocol.AuthCommand:
		return "AUTH " + c.Username + " AS " + c.DisplayName + " USING " + c.Secret + Terminator, nil
	case protocol.JoinCommand:
		return "JOIN " + c.Channel + " AS " + c.DisplayName + Terminator, nil
	case protocol.MsgCommand:
		return "MSG FROM " + c.DisplayName + " IS " + c.Content + Terminator, nil
	case protocol.ByeCommand:
		return "BYE FROM " + c.DisplayName + Terminator, nil
	case protocol.ErrCommand:
		return "ERROR FROM " + c.DisplayName + " IS " + c.Content + Terminator, nil
	default:
		return "", fmt.Errorf("%w: command %T", protocol.ErrUnexpectedFrame, cmd)
	}
}

// DecodeLine parses one received line (terminator already stripped) into a
// NormalizedMessage. An unrecognized leading keyword yields ErrUnknownKeyword
// rather than a silent drop so the session layer can react.
func DecodeLine(line string) (protocol.NormalizedMessage, error) {
	switch {
	case strings.HasPrefix(line, "REPLY "):
		return decodeReply(strings.TrimPrefix(line, "REPLY "))
	case strings.HasPrefix(line, "MSG FROM "):
		sender, content, err := decodeFromIs("MSG", strings.TrimPrefix(line, "MSG FROM "))
		if err != nil {
			return protocol.NormalizedMessage{}, err
		}
		return protocol.NormalizedMessage{Kind: protocol.KindChat, Sender: sender, Content: content}, nil
	case strings.HasPrefix(line, "ERROR FROM "):
		sender, content, err := decodeFromIs("ERROR", strings.TrimPrefix(line, "ERROR FROM "))
		if err != nil {
			return protocol.NormalizedMessage{}, err
		}
		return protocol.NormalizedMessage{Kind: protocol.KindError, Sender: sender, Content: content}, nil
	case strings.HasPrefix(line, "BYE FROM "):
		sender := strings.TrimPrefix(line, "BYE FROM ")
		if err := protocol.ValidateDisplayName(sender); err != nil {
			return protocol.NormalizedMessage{}, err
		}
		return protocol.NormalizedMessage{Kind: protocol.KindFarewell, Sender: sender}, nil
	default:
		return protocol.NormalizedMessage{}, fmt.Errorf("%w: %q", protocol.ErrUnknownKeyword, leadingToken(line))
	}
}

func decodeReply(rest string) (protocol.NormalizedMessage, error) {
	var success bool
	switch {
	case strings.HasPrefix(rest, "OK IS "):
		success = true
		rest = strings.TrimPrefix(rest, "OK IS ")
	case strings.HasPrefix(rest, "NOK IS "):
		success = false
		rest = strings.TrimPrefix(rest, "NOK IS ")
	default:
		return protocol.NormalizedMessage{}, fmt.Errorf("%w: REPLY result", protocol.ErrMalformed)
	}
	if err := protocol.ValidateContent(rest); err != nil {
		return protocol.NormalizedMessage{}, err
	}
	return protocol.NormalizedMessage{Kind: protocol.KindReply, Success: success, Content: rest}, nil
}

// decodeFromIs parses "{displayName} IS {content}" for MSG and ERROR frames.
func decodeFromIs(keyword, rest string) (sender, content string, err error) {
	i := strings.Index(rest, " IS ")
	if i < 0 {
		return "", "", fmt.Errorf("%w: %s frame missing IS separator", protocol.ErrMalformed, keyword)
	}
	sender, content = rest[:i], rest[i+len(" IS "):]
	if err := protocol.ValidateDisplayName(sender); err != nil {
		return "", "", err
	}
	if err := protocol.ValidateContent(content); err != nil {
		return "", "", err
	}
	return sender, content, nil
}

func leadingToken(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}
