package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpetrik/chatproto/internal/protocol"
	"github.com/hpetrik/chatproto/internal/protocol/textwire"
)

// StreamTransport frames commands onto a reliable byte stream. The stream
// itself guarantees delivery, so no acknowledgment machinery is involved.
type StreamTransport struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config
	log    zerolog.Logger
	closed atomic.Bool
}

// DialStream connects to addr over TCP.
func DialStream(ctx context.Context, addr string, cfg Config, log zerolog.Logger) (*StreamTransport, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial stream %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("stream connected")
	return NewStreamTransport(conn, cfg, log), nil
}

// NewStreamTransport wraps an established connection. Split from DialStream
// so tests can drive the codec over an in-memory pipe.
func NewStreamTransport(conn net.Conn, cfg Config, log zerolog.Logger) *StreamTransport {
	return &StreamTransport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, textwire.MaxLineBytes),
		cfg:    cfg,
		log:    log,
	}
}

func (t *StreamTransport) Send(ctx context.Context, cmd protocol.Command) error {
	line, err := textwire.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrConnectionClosed
	}
	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if _, err := io.WriteString(t.conn, line); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	t.log.Debug().Str("frame", strings.TrimSuffix(line, textwire.Terminator)).Msg("sent")
	return nil
}

func (t *StreamTransport) Receive(ctx context.Context) (protocol.NormalizedMessage, error) {
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return protocol.NormalizedMessage{}, err
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadPollInterval))
		chunk, err := t.reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if len(pending) > textwire.MaxLineBytes {
					return protocol.NormalizedMessage{}, fmt.Errorf("%w: frame exceeds %d bytes",
						protocol.ErrMalformed, textwire.MaxLineBytes)
				}
				continue
			}
			if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return protocol.NormalizedMessage{}, ErrConnectionClosed
			}
			return protocol.NormalizedMessage{}, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		line := strings.TrimSuffix(strings.TrimSuffix(string(pending), "\n"), "\r")
		t.log.Debug().Str("frame", line).Msg("received")
		return textwire.DecodeLine(line)
	}
}

// Flush is a no-op: stream writes are synchronous and unacknowledged.
func (t *StreamTransport) Flush(ctx context.Context) error {
	return nil
}

func (t *StreamTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}
