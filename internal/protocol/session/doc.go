// Package session drives a docking connection through its handshake and
// the command exchanges that follow.
//
// Ownership boundary:
// - the handshake state machine and its replies
// - at most one outstanding command per operation
// - multi-command exchanges that stop when the device cancels or disconnects
package session
