// Package protocol owns the transport-independent message contract.
//
// Ownership boundary:
// - outbound command shapes and their field validation
// - the normalized inbound message representation
// - shared sentinel errors for malformed wire data
package protocol
