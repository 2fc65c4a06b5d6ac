package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hpetrik/chatproto/internal/protocol"
)

// fallbackDisplayName names the client in fault reports issued before the
// user ever supplied a display name.
const fallbackDisplayName = "chatproto"

// Client is the protocol engine facade. It validates and frames user intents,
// consumes the transport's inbound stream, drives the session state machine,
// and surfaces normalized messages and faults on dedicated channels.
type Client struct {
	cfg       Config
	transport ProtocolTransport
	session   *Session
	coord     *ShutdownCoordinator
	log       zerolog.Logger

	events chan protocol.NormalizedMessage
	faults chan error
}

func New(transport ProtocolTransport, cfg Config, log zerolog.Logger) *Client {
	session := NewSession(log)
	if dt, ok := transport.(*DatagramTransport); ok {
		dt.SetReplyPending(session.HasPendingRequest)
	}
	return &Client{
		cfg:       cfg,
		transport: transport,
		session:   session,
		coord:     NewShutdownCoordinator(transport, session, cfg.ShutdownStageTimeout, log),
		log:       log,
		events:    make(chan protocol.NormalizedMessage, cfg.EventBuffer),
		faults:    make(chan error, cfg.EventBuffer),
	}
}

// Events is the inbound stream of normalized messages.
func (c *Client) Events() <-chan protocol.NormalizedMessage {
	return c.events
}

// Faults is the side channel for connection and protocol faults.
func (c *Client) Faults() <-chan error {
	return c.faults
}

// Done is closed once the shutdown sequence has completed.
func (c *Client) Done() <-chan struct{} {
	return c.coord.Done()
}

// State reports the current session state.
func (c *Client) State() State {
	return c.session.State()
}

// Run owns the inbound-receive loop. It keeps receiving during the shutdown
// sequence so confirms for the farewell frame still resolve, and returns
// after the sequence completes. ctx cancellation triggers an orderly
// shutdown; it is not treated as a protocol failure.
func (c *Client) Run(ctx context.Context) error {
	recvCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			c.coord.Shutdown("context canceled", true)
		case <-c.coord.Done():
		}
	}()
	go func() {
		<-c.coord.Done()
		cancel()
	}()

	for {
		msg, err := c.transport.Receive(recvCtx)
		if err != nil {
			if recvCtx.Err() != nil || c.coord.Triggered() {
				<-c.coord.Done()
				return nil
			}
			if isProtocolFault(err) {
				c.failProtocol(err)
				continue
			}
			c.emitFault(fmt.Errorf("connection fault: %w", err))
			c.coord.Shutdown("connection fault", false)
			<-c.coord.Done()
			return nil
		}
		c.dispatch(msg)
	}
}

// SendAuthenticate validates the triple, records the outstanding request, and
// transmits the Authenticate frame.
func (c *Client) SendAuthenticate(ctx context.Context, username, displayName, secret string) error {
	cmd := protocol.AuthCommand{Username: username, DisplayName: displayName, Secret: secret}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := c.session.BeginAuth(displayName); err != nil {
		return err
	}
	return c.deliver(ctx, cmd)
}

// SendJoin validates the channel, records the outstanding request, and
// transmits the Join frame.
func (c *Client) SendJoin(ctx context.Context, channel, displayName string) error {
	cmd := protocol.JoinCommand{Channel: channel, DisplayName: displayName}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := c.session.BeginJoin(channel, displayName); err != nil {
		return err
	}
	return c.deliver(ctx, cmd)
}

// SendChatMessage transmits one chat message to the current channel.
func (c *Client) SendChatMessage(ctx context.Context, displayName, content string) error {
	cmd := protocol.MsgCommand{DisplayName: displayName, Content: content}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := c.session.EnsureChatAllowed(displayName); err != nil {
		return err
	}
	return c.deliver(ctx, cmd)
}

// SendFarewell transmits a Bye frame without tearing the session down; use
// Disconnect for the full termination sequence.
func (c *Client) SendFarewell(ctx context.Context, displayName string) error {
	cmd := protocol.ByeCommand{DisplayName: displayName}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if c.session.State() == StateTerminated {
		return fmt.Errorf("%w: farewell in state %s", ErrIllegalState, StateTerminated)
	}
	return c.deliver(ctx, cmd)
}

// SendError reports a fault to the peer.
func (c *Client) SendError(ctx context.Context, displayName, content string) error {
	cmd := protocol.ErrCommand{DisplayName: displayName, Content: content}
	if err := cmd.Validate(); err != nil {
		return err
	}
	return c.deliver(ctx, cmd)
}

// Disconnect starts the termination sequence. Idempotent; completion is
// observable through Done.
func (c *Client) Disconnect() {
	c.coord.Shutdown("user disconnect", true)
}

// deliver hands a validated command to the transport and folds transport
// failures into the fault stream.
func (c *Client) deliver(ctx context.Context, cmd protocol.Command) error {
	err := c.transport.Send(ctx, cmd)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.emitFault(fmt.Errorf("connection fault: %w", err))
	c.coord.Shutdown("connection fault", false)
	return err
}

func (c *Client) dispatch(msg protocol.NormalizedMessage) {
	switch msg.Kind {
	case protocol.KindReply:
		resolved, err := c.session.ApplyReply(msg.Success)
		if err != nil {
			c.failProtocol(err)
			return
		}
		c.log.Info().
			Str("request", resolved.String()).
			Bool("success", msg.Success).
			Str("content", msg.Content).
			Msg("reply")
		c.emitEvent(msg)
	case protocol.KindChat:
		if !c.session.AllowsInboundChat() {
			c.log.Debug().Str("sender", msg.Sender).Msg("chat before authentication discarded")
			return
		}
		c.emitEvent(msg)
	case protocol.KindError:
		c.emitEvent(msg)
		c.coord.Shutdown("peer reported error", true)
	case protocol.KindFarewell:
		c.emitEvent(msg)
		c.coord.Shutdown("peer farewell", false)
	}
}

// failProtocol reports a malformed inbound frame to the peer and starts the
// termination sequence. The Error frame is sent off the receive loop so its
// own confirm can still resolve.
func (c *Client) failProtocol(cause error) {
	c.emitFault(fmt.Errorf("protocol fault: %w", cause))
	if c.coord.Triggered() {
		return
	}
	dn := c.session.DisplayName()
	if dn == "" {
		dn = fallbackDisplayName
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownStageTimeout)
		defer cancel()
		cmd := protocol.ErrCommand{DisplayName: dn, Content: faultContent(cause)}
		if err := c.transport.Send(ctx, cmd); err != nil {
			c.log.Debug().Err(err).Msg("error report not delivered")
		}
		c.coord.Shutdown("protocol fault", true)
	}()
}

// emitEvent delivers msg to the consumer, honoring backpressure but never
// outliving the shutdown sequence.
func (c *Client) emitEvent(msg protocol.NormalizedMessage) {
	select {
	case c.events <- msg:
	case <-c.coord.Done():
	}
}

func (c *Client) emitFault(err error) {
	c.log.Error().Err(err).Msg("fault")
	select {
	case c.faults <- err:
	default:
		c.log.Debug().Msg("fault channel full, dropped")
	}
}

// faultContent renders cause as a wire-legal Error content string.
func faultContent(cause error) string {
	content := cause.Error()
	if len(content) > protocol.MaxContentLen {
		content = content[:protocol.MaxContentLen]
	}
	out := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		if content[i] >= 0x20 && content[i] <= 0x7E {
			out = append(out, content[i])
		} else {
			out = append(out, '?')
		}
	}
	if len(out) == 0 {
		return "malformed message"
	}
	return string(out)
}
