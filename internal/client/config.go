package client

import "time"

// Config defines engine reliability and scheduling defaults. It is immutable
// after construction; every component receives it by value.
type Config struct {
	// ConfirmTimeout is the per-attempt wait for a datagram CONFIRM.
	ConfirmTimeout time.Duration
	// MaxRetries is the number of retransmissions after the first send.
	MaxRetries int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// ReadPollInterval bounds how long a receive loop stays blind to
	// cancellation while waiting on the socket.
	ReadPollInterval time.Duration
	// ShutdownStageTimeout bounds each stage of the termination sequence.
	ShutdownStageTimeout time.Duration
	// EventBuffer sizes the normalized-message and fault channels.
	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:       250 * time.Millisecond,
		MaxRetries:           3,
		DialTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReadPollInterval:     100 * time.Millisecond,
		ShutdownStageTimeout: 2 * time.Second,
		EventBuffer:          32,
	}
}
