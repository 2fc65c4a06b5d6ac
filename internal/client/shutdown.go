package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpetrik/chatproto/internal/protocol"
)

// ShutdownCoordinator drives the bounded termination sequence: notify the
// peer, flush outstanding acknowledgments, close the socket. Concurrent
// triggers collapse into a single run.
type ShutdownCoordinator struct {
	transport    ProtocolTransport
	session      *Session
	stageTimeout time.Duration
	log          zerolog.Logger

	once      sync.Once
	triggered atomic.Bool
	done      chan struct{}
}

func NewShutdownCoordinator(t ProtocolTransport, s *Session, stageTimeout time.Duration, log zerolog.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		transport:    t,
		session:      s,
		stageTimeout: stageTimeout,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Shutdown starts the termination sequence once and returns immediately. The
// stages run asynchronously so the receive loop can keep resolving confirms
// for the farewell frame; completion is observable through Done.
func (c *ShutdownCoordinator) Shutdown(reason string, notify bool) {
	c.once.Do(func() {
		c.triggered.Store(true)
		go c.run(reason, notify)
	})
}

// Triggered reports whether the sequence has started.
func (c *ShutdownCoordinator) Triggered() bool {
	return c.triggered.Load()
}

// Done is closed after the final stage completes.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

func (c *ShutdownCoordinator) run(reason string, notify bool) {
	defer close(c.done)
	c.log.Info().Str("reason", reason).Bool("notify", notify).Msg("shutdown started")

	if notify {
		if dn := c.session.DisplayName(); dn != "" {
			ctx, cancel := context.WithTimeout(context.Background(), c.stageTimeout)
			if err := c.transport.Send(ctx, protocol.ByeCommand{DisplayName: dn}); err != nil {
				c.log.Debug().Err(err).Msg("farewell not delivered")
			}
			cancel()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.stageTimeout)
	if err := c.transport.Flush(ctx); err != nil {
		c.log.Debug().Err(err).Msg("flush incomplete")
	}
	cancel()

	if err := c.transport.Close(); err != nil {
		c.log.Debug().Err(err).Msg("socket close")
	}
	c.session.Terminate()
	c.log.Info().Msg("shutdown complete")
}
