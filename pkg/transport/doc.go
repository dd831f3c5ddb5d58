// Package transport moves protocol frames between two peers.
//
// Every carrier presents the same Conn: Send writes one encoded frame and
// Receive returns one whole frame no matter how the network split or
// coalesced the bytes. TCP reads length-prefixed frames off the stream,
// WebSocket reassembles frames from binary messages at Path, and UDP sends
// each frame as its own datagram.
//
// Errors wrap ErrClosed when the channel is gone and ErrTransport for
// failures a session may log and ride out.
package transport
