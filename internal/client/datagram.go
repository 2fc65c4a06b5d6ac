package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpetrik/chatproto/internal/protocol"
	"github.com/hpetrik/chatproto/internal/protocol/binwire"
)

// maxDatagramBytes sizes the receive buffer above any legal frame.
const maxDatagramBytes = 64 * 1024

// DatagramTransport frames commands into datagrams and layers confirm/retry/
// dedup reliability on top, since the channel itself guarantees nothing.
type DatagramTransport struct {
	conn   *net.UDPConn
	cfg    Config
	log    zerolog.Logger
	outbox *ConfirmOutbox
	closed atomic.Bool

	mu         sync.Mutex
	peer       *net.UDPAddr
	peerLocked bool
	nextID     uint16
	seen       map[uint16]struct{}

	// replyPending reports whether the session expects a Reply; duplicates of
	// Reply frames are reprocessed while it returns true.
	replyPending func() bool
}

// DialDatagram binds a local socket and records addr as the initial peer.
// The peer is rebound to whichever address the server replies from until
// authentication succeeds.
func DialDatagram(ctx context.Context, addr string, cfg Config, log zerolog.Logger) (*DatagramTransport, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve datagram peer %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("bind datagram socket: %w", err)
	}
	log.Info().Str("peer", peer.String()).Str("local", conn.LocalAddr().String()).Msg("datagram socket bound")
	return NewDatagramTransport(conn, peer, cfg, log), nil
}

// NewDatagramTransport wraps an already bound socket. Split from DialDatagram
// so tests can point the transport at a loopback peer.
func NewDatagramTransport(conn *net.UDPConn, peer *net.UDPAddr, cfg Config, log zerolog.Logger) *DatagramTransport {
	return &DatagramTransport{
		conn:   conn,
		cfg:    cfg,
		log:    log,
		outbox: NewConfirmOutbox(),
		peer:   peer,
		seen:   make(map[uint16]struct{}),
	}
}

// SetReplyPending installs the session predicate backing the deduplication
// exception for Reply frames. Must be set before Receive runs.
func (t *DatagramTransport) SetReplyPending(fn func() bool) {
	t.replyPending = fn
}

// Send transmits cmd and waits for its CONFIRM, retransmitting identical
// bytes on each timeout. An exhausted budget degrades to one final
// unconfirmed transmission instead of failing: delivery stays best-effort
// even when reliability cannot be proven.
func (t *DatagramTransport) Send(ctx context.Context, cmd protocol.Command) error {
	id := t.allocID()
	payload, err := binwire.EncodeCommand(id, cmd)
	if err != nil {
		return err
	}

	pending := t.outbox.Add(id, payload)
	defer t.outbox.Remove(id)

	attempts := 1 + t.cfg.MaxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := t.writeToPeer(payload); err != nil {
			return err
		}
		n, _ := t.outbox.MarkAttempt(id)
		t.log.Debug().Uint16("id", id).Int("attempt", n).Msg("datagram sent")

		timer := time.NewTimer(t.cfg.ConfirmTimeout)
		select {
		case <-pending.Done():
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	// Budget exhausted: best-effort final transmission, reported as degraded
	// rather than failed.
	if err := t.writeToPeer(payload); err != nil {
		return err
	}
	t.log.Warn().Uint16("id", id).Int("attempts", attempts).Msg("confirm retries exhausted, sent unconfirmed")
	return nil
}

// Receive reads datagrams until one normalizes into an application message.
// Confirms resolve the outbox, every inbound application frame is confirmed
// even when it is a duplicate, and duplicates are dropped except for Reply
// frames while a request is outstanding.
func (t *DatagramTransport) Receive(ctx context.Context) (protocol.NormalizedMessage, error) {
	buf := make([]byte, maxDatagramBytes)
	for {
		if err := ctx.Err(); err != nil {
			return protocol.NormalizedMessage{}, err
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadPollInterval))
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return protocol.NormalizedMessage{}, ErrConnectionClosed
			}
			return protocol.NormalizedMessage{}, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		t.maybeRebindPeer(src)

		f, err := binwire.Decode(buf[:n])
		if err != nil {
			return protocol.NormalizedMessage{}, err
		}

		if f.Type == binwire.TypeConfirm {
			if !t.outbox.Resolve(f.ID) {
				t.log.Debug().Uint16("id", f.ID).Msg("stray confirm")
			}
			continue
		}

		// Confirm unconditionally, duplicates included, so a peer that lost
		// an earlier confirm can still complete its retry loop.
		t.sendConfirm(f.ID)

		if f.Type == binwire.TypePing {
			t.log.Debug().Uint16("id", f.ID).Msg("ping")
			continue
		}

		if t.isDuplicate(f) {
			t.log.Debug().Uint16("id", f.ID).Str("type", f.Type.String()).Msg("duplicate dropped")
			continue
		}

		msg, err := binwire.Normalize(f)
		if err != nil {
			return protocol.NormalizedMessage{}, err
		}
		if msg.Kind == protocol.KindReply && msg.Success {
			// The first successful Reply resolves authentication; the peer's
			// session address is stable from here on.
			t.lockPeer()
		}
		return msg, nil
	}
}

// Flush waits until no outbound datagram is awaiting its confirm.
func (t *DatagramTransport) Flush(ctx context.Context) error {
	return t.outbox.Drained(ctx)
}

func (t *DatagramTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

func (t *DatagramTransport) allocID() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++ // wraps modulo 65536
	return id
}

func (t *DatagramTransport) writeToPeer(payload []byte) error {
	if t.closed.Load() {
		return ErrConnectionClosed
	}
	t.mu.Lock()
	peer := t.peer
	t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if _, err := t.conn.WriteToUDP(payload, peer); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

func (t *DatagramTransport) sendConfirm(refID uint16) {
	if err := t.writeToPeer(binwire.EncodeConfirm(refID)); err != nil {
		t.log.Debug().Err(err).Uint16("id", refID).Msg("confirm not sent")
	}
}

func (t *DatagramTransport) maybeRebindPeer(src *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peerLocked {
		return
	}
	if t.peer.IP.Equal(src.IP) && t.peer.Port == src.Port {
		return
	}
	t.log.Debug().Str("peer", src.String()).Msg("peer address learned")
	t.peer = src
}

func (t *DatagramTransport) lockPeer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peerLocked = true
}

// isDuplicate records f's identifier and reports whether it was already
// processed. Reply frames bypass the check while a request is outstanding:
// their meaning depends on session context, not identifier novelty.
func (t *DatagramTransport) isDuplicate(f binwire.Frame) bool {
	t.mu.Lock()
	_, dup := t.seen[f.ID]
	t.seen[f.ID] = struct{}{}
	t.mu.Unlock()
	if !dup {
		return false
	}
	if f.Type == binwire.TypeReply && t.replyPending != nil && t.replyPending() {
		return false
	}
	return true
}
