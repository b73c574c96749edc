package link

import (
	"fmt"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/queue"
)

// PipeConfig describes an in-memory link between two endpoints.
type PipeConfig struct {
	Name string
	// Capacity bounds the packets queued toward each side; <=0 is unlimited.
	Capacity int
	// Latency delays delivery by this many ticks of Clock.
	Latency int64
	// Clock supplies the current tick; nil means delivery is immediate.
	Clock func() int64
	// LevelA and LevelB are the protocol levels advertised by each side.
	LevelA int
	LevelB int
}

// inFlight is a packet travelling toward an endpoint.
type inFlight struct {
	data    []byte
	arrival int64
}

// EndpointStats counts traffic through one endpoint.
type EndpointStats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
	Rejected uint64
	MaxDepth int
}

// Pipe joins two endpoints.
type Pipe struct {
	name    string
	latency int64
	clock   func() int64
	severed bool
	a       *Endpoint
	b       *Endpoint
}

// NewPipe creates a pipe with both endpoints closed.
func NewPipe(cfg PipeConfig) *Pipe {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = queue.UnlimitedCapacity
	}
	p := &Pipe{name: cfg.Name, latency: cfg.Latency, clock: cfg.Clock}
	p.a = newEndpoint(p, cfg.Name+"/a", capacity, cfg.LevelA)
	p.b = newEndpoint(p, cfg.Name+"/b", capacity, cfg.LevelB)
	p.a.peer, p.b.peer = p.b, p.a
	return p
}

func newEndpoint(p *Pipe, name string, capacity int, level int) *Endpoint {
	e := &Endpoint{name: name, pipe: p, level: level}
	e.inbox = queue.NewTrackedQueue(name, capacity, func(length, _ int) {
		if length > e.stats.MaxDepth {
			e.stats.MaxDepth = length
		}
	}, queue.QueueHooks[inFlight]{})
	return e
}

// A returns the first endpoint.
func (p *Pipe) A() *Endpoint { return p.a }

// B returns the second endpoint.
func (p *Pipe) B() *Endpoint { return p.b }

// Name returns the pipe name.
func (p *Pipe) Name() string { return p.name }

// Severed reports whether the wire is currently cut.
func (p *Pipe) Severed() bool { return p.severed }

// Sever cuts the wire: both sides read EOF, in-flight packets are lost and
// later writes vanish until Restore.
func (p *Pipe) Sever() {
	if p.severed {
		return
	}
	p.severed = true
	for _, e := range []*Endpoint{p.a, p.b} {
		e.inbox.Clear()
		e.eof = true
	}
}

// Restore reconnects a severed wire.
func (p *Pipe) Restore() {
	p.severed = false
}

func (p *Pipe) now() int64 {
	if p.clock == nil {
		return 0
	}
	return p.clock()
}

// Endpoint is one side of a Pipe and implements Channel.
type Endpoint struct {
	name  string
	pipe  *Pipe
	peer  *Endpoint
	inbox *queue.TrackedQueue[inFlight]
	open  bool
	eof   bool
	level int
	stats EndpointStats
}

var _ Channel = (*Endpoint)(nil)

// Name identifies the endpoint in logs.
func (e *Endpoint) Name() string { return e.name }

// IsOpen reports whether the endpoint is attached.
func (e *Endpoint) IsOpen() bool { return e.open }

// Open attaches the endpoint.
func (e *Endpoint) Open() error {
	e.open = true
	return nil
}

// Close detaches the endpoint and discards unread packets.
func (e *Endpoint) Close() error {
	e.open = false
	e.eof = false
	e.stats.Dropped += uint64(e.inbox.Clear())
	return nil
}

// ReadPacket returns the next packet whose arrival tick has passed.
func (e *Endpoint) ReadPacket() ([]byte, error) {
	if !e.open {
		return nil, ErrClosed
	}
	if e.eof {
		e.eof = false
		return nil, ErrEOF
	}
	head, ok := e.inbox.Peek()
	if !ok || head.arrival > e.pipe.now() {
		return nil, ErrNoData
	}
	e.inbox.PopFront(e.pipe.now())
	if len(head.data) == 0 {
		return nil, ErrEOF
	}
	e.stats.Received++
	return head.data, nil
}

// WritePacket copies p toward the peer. Packets sent to a closed peer or
// over a severed wire are silently lost, as on real hardware.
func (e *Endpoint) WritePacket(p []byte) error {
	if !e.open {
		return ErrClosed
	}
	if len(p) > core.MaxPacketLen {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(p))
	}
	if e.pipe.severed || !e.peer.open {
		e.stats.Dropped++
		return nil
	}
	if !e.peer.inbox.CanAccept(1) {
		e.stats.Rejected++
		return ErrFull
	}
	data := make([]byte, len(p))
	copy(data, p)
	now := e.pipe.now()
	e.peer.inbox.Enqueue(inFlight{data: data, arrival: now + e.pipe.latency}, now)
	e.stats.Sent++
	return nil
}

// PeerLevel returns the peer's advertised level while it is attached.
func (e *Endpoint) PeerLevel() int {
	if e.pipe.severed || !e.peer.open {
		return 0
	}
	return e.peer.level
}

// Level returns the level this endpoint advertises.
func (e *Endpoint) Level() int { return e.level }

// SetLevel changes the advertised level.
func (e *Endpoint) SetLevel(level int) { e.level = level }

// Inject queues raw bytes for this endpoint to read, bypassing the peer.
// It is used for fault injection and returns false if the inbox is full.
func (e *Endpoint) Inject(raw []byte) bool {
	data := make([]byte, len(raw))
	copy(data, raw)
	now := e.pipe.now()
	return e.inbox.Enqueue(inFlight{data: data, arrival: now}, now)
}

// Pending returns the number of packets queued toward this endpoint.
func (e *Endpoint) Pending() int { return e.inbox.Len() }

// Stats returns a snapshot of the traffic counters.
func (e *Endpoint) Stats() EndpointStats { return e.stats }
