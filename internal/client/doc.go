// Package client owns the protocol engine: transport adapters, the datagram
// reliability machinery, the session state machine, and the shutdown
// coordinator behind one facade.
//
// Ownership boundary:
// - ProtocolTransport contract and its stream/datagram implementations
// - confirm/retry/dedup state for the datagram transport
// - session state transitions and reply disambiguation
// - staged, idempotent termination
package client
