// Package link models the physical device between two adjacent tiles: a
// non-blocking, ordered packet channel.
package link

import "errors"

var (
	// ErrNoData means nothing is waiting; callers retry later.
	ErrNoData = errors.New("link: no data available")
	// ErrEOF is reported when a zero-length packet is read.
	ErrEOF = errors.New("link: end of stream")
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("link: channel closed")
	// ErrFull means the peer cannot take another packet right now.
	ErrFull = errors.New("link: peer buffer full")
	// ErrTooLong rejects packets above the device limit.
	ErrTooLong = errors.New("link: packet too long")
)

// Channel is one tile's end of an inter-tile link. No method blocks.
type Channel interface {
	// Open (re)attaches the endpoint. Opening an open endpoint is a no-op.
	Open() error
	// Close detaches the endpoint and discards anything unread.
	Close() error
	// ReadPacket returns the next delivered packet, ErrNoData when none
	// is waiting, or ErrEOF for a zero-length packet.
	ReadPacket() ([]byte, error)
	// WritePacket queues a packet for the peer.
	WritePacket(p []byte) error
	// PeerLevel reports the protocol level the peer advertises, or zero
	// when no peer is attached.
	PeerLevel() int
}
