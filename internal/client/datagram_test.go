package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hpetrik/chatproto/internal/logging"
	"github.com/hpetrik/chatproto/internal/protocol"
	"github.com/hpetrik/chatproto/internal/protocol/binwire"
	"github.com/hpetrik/chatproto/internal/testutil/testlog"
)

// fakePeer is a loopback UDP endpoint standing in for the server.
type fakePeer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("bind fake peer: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakePeer{t: t, conn: conn}
}

func (p *fakePeer) addr() *net.UDPAddr {
	return p.conn.LocalAddr().(*net.UDPAddr)
}

// read returns the next datagram or nil once wait elapses without one.
func (p *fakePeer) read(wait time.Duration) ([]byte, *net.UDPAddr) {
	p.t.Helper()
	buf := make([]byte, maxDatagramBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(wait))
	n, src, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, src
}

func (p *fakePeer) confirm(to *net.UDPAddr, id uint16) {
	p.t.Helper()
	if _, err := p.conn.WriteToUDP(binwire.EncodeConfirm(id), to); err != nil {
		p.t.Errorf("send confirm: %v", err)
	}
}

func (p *fakePeer) send(to *net.UDPAddr, frame []byte) {
	p.t.Helper()
	if _, err := p.conn.WriteToUDP(frame, to); err != nil {
		p.t.Errorf("send frame: %v", err)
	}
}

func newDatagramUnderTest(t *testing.T, peer *net.UDPAddr) *DatagramTransport {
	t.Helper()
	testlog.Start(t)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("bind transport socket: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ConfirmTimeout = 60 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.ReadPollInterval = 10 * time.Millisecond
	tr := NewDatagramTransport(conn, peer, cfg, logging.New("datagram-test"))
	t.Cleanup(func() { tr.Close() })
	return tr
}

// startReceiver keeps the transport's inbound loop alive so confirms resolve,
// forwarding application messages and faults to channels.
func startReceiver(t *testing.T, tr *DatagramTransport) (<-chan protocol.NormalizedMessage, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan protocol.NormalizedMessage, 16)
	errs := make(chan error, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msg, err := tr.Receive(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					errs <- err
				}
				return
			}
			msgs <- msg
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return msgs, errs, cancel
}

func TestDatagramSendConfirmedFirstAttempt(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	startReceiver(t, tr)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- tr.Send(ctx, protocol.AuthCommand{Username: "bob", DisplayName: "Bob", Secret: "s"})
	}()

	frame, src := peer.read(time.Second)
	if frame == nil {
		t.Fatalf("no datagram reached peer")
	}
	f, err := binwire.Decode(frame)
	if err != nil || f.Type != binwire.TypeAuth {
		t.Fatalf("unexpected frame %v (err=%v)", f, err)
	}
	peer.confirm(src, f.ID)

	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if extra, _ := peer.read(150 * time.Millisecond); extra != nil {
		t.Fatalf("unexpected retransmission after confirm: % x", extra)
	}
	if tr.outbox.Len() != 0 {
		t.Fatalf("outbox not empty after confirmed send")
	}
}

func TestDatagramRetransmitsIdenticalBytesOnLoss(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	startReceiver(t, tr)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- tr.Send(ctx, protocol.MsgCommand{DisplayName: "Bob", Content: "hi"})
	}()

	// Simulate loss of the first transmission: read it, confirm nothing.
	first, _ := peer.read(time.Second)
	if first == nil {
		t.Fatalf("first transmission missing")
	}
	second, src := peer.read(time.Second)
	if second == nil {
		t.Fatalf("no retransmission after confirm timeout")
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("retransmission differs:\n first % x\nsecond % x", first, second)
	}
	f, err := binwire.Decode(second)
	if err != nil {
		t.Fatalf("decode retransmission: %v", err)
	}
	peer.confirm(src, f.ID)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestDatagramExhaustedBudgetSendsOnceUnconfirmed(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	startReceiver(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	// Peer never confirms: MaxRetries=2 means 3 awaited attempts plus one
	// final unconfirmed transmission, and the operation still reports sent.
	if err := tr.Send(ctx, protocol.MsgCommand{DisplayName: "Bob", Content: "hi"}); err != nil {
		t.Fatalf("exhausted send reported failure: %v", err)
	}

	var transmissions int
	var want []byte
	for {
		frame, _ := peer.read(200 * time.Millisecond)
		if frame == nil {
			break
		}
		if want == nil {
			want = frame
		} else if !bytes.Equal(want, frame) {
			t.Fatalf("transmission bytes changed across attempts")
		}
		transmissions++
	}
	if transmissions != 4 {
		t.Fatalf("got %d transmissions, want 4", transmissions)
	}
	if tr.outbox.Len() != 0 {
		t.Fatalf("exhausted entry left in outbox")
	}
}

func TestDatagramInboundConfirmedAndDeduplicated(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	msgs, _, _ := startReceiver(t, tr)

	chat := append([]byte{byte(binwire.TypeMsg), 0x00, 0x07}, []byte("Alice\x00hi\x00")...)
	peer.send(tr.conn.LocalAddr().(*net.UDPAddr), chat)
	peer.send(tr.conn.LocalAddr().(*net.UDPAddr), chat) // duplicate delivery

	select {
	case msg := <-msgs:
		if msg.Kind != protocol.KindChat || msg.Sender != "Alice" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("chat message not delivered")
	}

	// Both arrivals are confirmed; only one message surfaces.
	var confirms int
	for {
		frame, _ := peer.read(200 * time.Millisecond)
		if frame == nil {
			break
		}
		f, err := binwire.Decode(frame)
		if err != nil || f.Type != binwire.TypeConfirm || f.ID != 7 {
			t.Fatalf("unexpected frame from transport: %v (err=%v)", f, err)
		}
		confirms++
	}
	if confirms != 2 {
		t.Fatalf("got %d confirms, want 2", confirms)
	}
	select {
	case msg := <-msgs:
		t.Fatalf("duplicate surfaced: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDatagramDuplicateReplyReprocessedWhilePending(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	tr.SetReplyPending(func() bool { return true })
	msgs, _, _ := startReceiver(t, tr)

	reply := append([]byte{byte(binwire.TypeReply), 0x00, 0x05, 0x01, 0x00, 0x00}, []byte("Auth success.\x00")...)
	to := tr.conn.LocalAddr().(*net.UDPAddr)
	peer.send(to, reply)
	peer.send(to, reply)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			if msg.Kind != protocol.KindReply || !msg.Success {
				t.Fatalf("unexpected message %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("reply %d not delivered", i+1)
		}
	}
}

func TestDatagramLearnsAndLocksPeerAddress(t *testing.T) {
	configured := newFakePeer(t) // address supplied at startup, never answers
	actual := newFakePeer(t)     // address the server actually replies from
	late := newFakePeer(t)       // third party after the address is locked
	tr := newDatagramUnderTest(t, configured.addr())
	msgs, _, _ := startReceiver(t, tr)
	to := tr.conn.LocalAddr().(*net.UDPAddr)

	// Successful reply from the actual address: learn it, then lock it.
	reply := append([]byte{byte(binwire.TypeReply), 0x00, 0x01, 0x01, 0x00, 0x00}, []byte("Auth success.\x00")...)
	actual.send(to, reply)
	select {
	case <-msgs:
	case <-time.After(time.Second):
		t.Fatalf("reply not delivered")
	}
	if frame, _ := actual.read(time.Second); frame == nil {
		t.Fatalf("confirm for reply not sent to learned address")
	}

	chat := append([]byte{byte(binwire.TypeMsg), 0x00, 0x02}, []byte("Mallory\x00hi\x00")...)
	late.send(to, chat)
	select {
	case <-msgs:
	case <-time.After(time.Second):
		t.Fatalf("chat not delivered")
	}

	// Outbound traffic still goes to the locked address, not the late sender.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tr.Send(ctx, protocol.ByeCommand{DisplayName: "Bob"})
	}()
	// The confirm for the third-party chat also lands here; skip confirms and
	// wait for the farewell itself.
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame, src := actual.read(time.Until(deadline))
		if frame == nil {
			t.Fatalf("outbound farewell not sent to locked address")
		}
		f, err := binwire.Decode(frame)
		if err != nil {
			t.Fatalf("decode frame at locked address: %v", err)
		}
		if f.Type == binwire.TypeConfirm {
			continue
		}
		if f.Type != binwire.TypeBye {
			t.Fatalf("unexpected frame at locked address: %v", f)
		}
		actual.confirm(src, f.ID)
		break
	}
	if frame, _ := configured.read(150 * time.Millisecond); frame != nil {
		t.Fatalf("traffic sent to stale configured address")
	}
}

func TestDatagramMalformedInboundIsProtocolFault(t *testing.T) {
	peer := newFakePeer(t)
	tr := newDatagramUnderTest(t, peer.addr())
	_, errs, _ := startReceiver(t, tr)

	peer.send(tr.conn.LocalAddr().(*net.UDPAddr), []byte{0x42, 0x00, 0x01})
	select {
	case err := <-errs:
		if !isProtocolFault(err) {
			t.Fatalf("unexpected fault class: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("malformed datagram produced no fault")
	}
}
