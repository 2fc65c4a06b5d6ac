package client

import (
	"context"
	"sync"
	"time"
)

// PendingConfirm tracks one datagram awaiting its CONFIRM.
type PendingConfirm struct {
	ID       uint16
	Payload  []byte
	Attempts int
	QueuedAt time.Time

	done chan struct{}
}

// Done is closed when the matching CONFIRM arrives.
func (p *PendingConfirm) Done() <-chan struct{} {
	return p.done
}

// ConfirmOutbox is the authoritative record of outbound datagrams still
// awaiting acknowledgment, keyed by message identifier.
type ConfirmOutbox struct {
	mu    sync.Mutex
	items map[uint16]*PendingConfirm
}

func NewConfirmOutbox() *ConfirmOutbox {
	return &ConfirmOutbox{
		items: make(map[uint16]*PendingConfirm),
	}
}

func (o *ConfirmOutbox) Add(id uint16, payload []byte) *PendingConfirm {
	item := &PendingConfirm{
		ID:       id,
		Payload:  payload,
		QueuedAt: time.Now(),
		done:     make(chan struct{}),
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[id] = item
	return item
}

func (o *ConfirmOutbox) MarkAttempt(id uint16) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return 0, false
	}
	item.Attempts++
	return item.Attempts, true
}

// Resolve completes the pending entry for id. Returns false for identifiers
// with no outstanding entry, such as a confirm duplicated by the network.
func (o *ConfirmOutbox) Resolve(id uint16) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return false
	}
	close(item.done)
	delete(o.items, id)
	return true
}

func (o *ConfirmOutbox) Remove(id uint16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, id)
}

func (o *ConfirmOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Drained blocks until the outbox is empty or ctx expires.
func (o *ConfirmOutbox) Drained(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
