package core

import (
	"errors"
	"fmt"
)

const (
	// HeaderLen is the fixed two-byte packet header.
	HeaderLen = 2
	// MaxPacketLen is the largest packet a link device accepts.
	MaxPacketLen = 255
	// TripleLen is the encoded size of one (x, y, atom) cache update.
	TripleLen = 2 + AtomBytes
	// MaxTriples is how many updates fit in one packet.
	MaxTriples = (MaxPacketLen - HeaderLen) / TripleLen
	// RingPayloadLen is the size of a RING body.
	RingPayloadLen = 3
	// CircuitCount is the number of circuit numbers per link and side.
	CircuitCount = 16
)

const (
	routedFlag    = 0x80
	urgencyShift  = 5
	urgencyMask   = 0x3
	reserved0Mask = 0x18
	dirMask       = 0x7
	subShift      = 5
	reserved1Mask = 0x10
	argMask       = 0xF

	yoinkBit   = 0x80
	radiusMask = 0x7
)

var (
	ErrShortPacket        = errors.New("packet too short")
	ErrPacketTooLong      = errors.New("packet too long")
	ErrBadHeader          = errors.New("malformed packet header")
	ErrReservedSubChannel = errors.New("reserved sub-channel")
	ErrBadPayload         = errors.New("malformed packet payload")
)

// SubChannel selects what a packet carries.
type SubChannel uint8

const (
	SubLink SubChannel = iota
	SubRing
	SubAnswer
	SubBusy
	SubTalk
	SubHangup
	SubFlash
	subReserved
)

var subNames = [...]string{"LINK", "RING", "ANSWER", "BUSY", "TALK", "HANGUP", "FLASH", "RESERVED"}

func (s SubChannel) String() string {
	if int(s) >= len(subNames) {
		return fmt.Sprintf("SubChannel(%d)", uint8(s))
	}
	return subNames[s]
}

// IsCircuit reports whether the sub-channel addresses a circuit number.
func (s SubChannel) IsCircuit() bool {
	return s >= SubRing && s < subReserved
}

// Header is the decoded form of the two header bytes.
//
// byte0: routed flag (bit 7), urgency (bits 6-5), reserved zero (bits 4-3),
// direction from sender to receiver (bits 2-0).
// byte1: sub-channel (bits 7-5), reserved zero (bit 4), state or circuit
// number (bits 3-0).
type Header struct {
	Urgency uint8
	Dir     Dir
	Sub     SubChannel
	Arg     uint8
}

// LinkHeader builds a link-protocol header carrying the sender's state.
func LinkHeader(dir Dir, state LinkState) Header {
	return Header{Dir: dir, Sub: SubLink, Arg: uint8(state)}
}

// CircuitHeader builds a header for a circuit operation.
func CircuitHeader(dir Dir, sub SubChannel, number int) Header {
	return Header{Dir: dir, Sub: sub, Arg: uint8(number)}
}

// Encode packs the header.
func (h Header) Encode() ([HeaderLen]byte, error) {
	var out [HeaderLen]byte
	switch {
	case h.Urgency > urgencyMask:
		return out, fmt.Errorf("%w: urgency %d", ErrBadHeader, h.Urgency)
	case h.Dir >= DirCount:
		return out, fmt.Errorf("%w: direction %d", ErrBadHeader, h.Dir)
	case h.Sub >= subReserved:
		return out, fmt.Errorf("%w: %d", ErrReservedSubChannel, h.Sub)
	case h.Arg > argMask:
		return out, fmt.Errorf("%w: argument %d", ErrBadHeader, h.Arg)
	}
	out[0] = routedFlag | h.Urgency<<urgencyShift | uint8(h.Dir)
	out[1] = uint8(h.Sub)<<subShift | h.Arg
	return out, nil
}

// DecodeHeader unpacks the first two bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortPacket
	}
	b0, b1 := b[0], b[1]
	if b0&routedFlag == 0 || b0&reserved0Mask != 0 || b1&reserved1Mask != 0 {
		return Header{}, fmt.Errorf("%w: %02x %02x", ErrBadHeader, b0, b1)
	}
	h := Header{
		Urgency: (b0 >> urgencyShift) & urgencyMask,
		Dir:     Dir(b0 & dirMask),
		Sub:     SubChannel(b1 >> subShift),
		Arg:     b1 & argMask,
	}
	if h.Sub >= subReserved {
		return Header{}, ErrReservedSubChannel
	}
	return h, nil
}

// Packet is a header plus its raw payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// Marshal returns the wire bytes of p.
func (p Packet) Marshal() ([]byte, error) {
	if HeaderLen+len(p.Payload) > MaxPacketLen {
		return nil, ErrPacketTooLong
	}
	hdr, err := p.Header.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderLen+len(p.Payload))
	out = append(out, hdr[:]...)
	return append(out, p.Payload...), nil
}

// ParsePacket splits raw wire bytes into header and payload. The payload
// aliases b.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) > MaxPacketLen {
		return Packet{}, ErrPacketTooLong
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: h, Payload: b[HeaderLen:]}, nil
}

// RingPayload is the body of a lock request: the window center relative
// to the receiver's origin, its radius and the sender's tie-break bit.
type RingPayload struct {
	X      int8
	Y      int8
	Radius uint8
	Yoink  bool
}

// Encode packs the ring body.
func (r RingPayload) Encode() ([]byte, error) {
	if r.Radius > radiusMask {
		return nil, fmt.Errorf("%w: radius %d", ErrBadPayload, r.Radius)
	}
	last := r.Radius
	if r.Yoink {
		last |= yoinkBit
	}
	return []byte{byte(r.X), byte(r.Y), last}, nil
}

// Center returns the ring center as a point.
func (r RingPayload) Center() SPoint {
	return Pt(int(r.X), int(r.Y))
}

// DecodeRing unpacks a RING body. Unused bits must be zero.
func DecodeRing(b []byte) (RingPayload, error) {
	if len(b) != RingPayloadLen {
		return RingPayload{}, fmt.Errorf("%w: ring length %d", ErrBadPayload, len(b))
	}
	if b[2]&^(yoinkBit|radiusMask) != 0 {
		return RingPayload{}, fmt.Errorf("%w: ring flags %02x", ErrBadPayload, b[2])
	}
	return RingPayload{
		X:      int8(b[0]),
		Y:      int8(b[1]),
		Radius: b[2] & radiusMask,
		Yoink:  b[2]&yoinkBit != 0,
	}, nil
}

// Triple is one site update in wire coordinates.
type Triple struct {
	X    uint8
	Y    uint8
	Atom Atom
}

// AppendTriples encodes ts after b.
func AppendTriples(b []byte, ts ...Triple) []byte {
	for _, t := range ts {
		b = append(b, t.X, t.Y)
		b = append(b, t.Atom[:]...)
	}
	return b
}

// DecodeTriples splits a payload into triples. A trailing partial triple
// is an error.
func DecodeTriples(b []byte) ([]Triple, error) {
	if len(b)%TripleLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of triples", ErrBadPayload, len(b))
	}
	out := make([]Triple, 0, len(b)/TripleLen)
	for off := 0; off < len(b); off += TripleLen {
		t := Triple{X: b[off], Y: b[off+1]}
		copy(t.Atom[:], b[off+2:off+TripleLen])
		out = append(out, t)
	}
	return out, nil
}
