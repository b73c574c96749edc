package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecodeAllFields(t *testing.T) {
	for urgency := uint8(0); urgency <= 3; urgency++ {
		for dir := Dir(0); dir < DirCount; dir++ {
			for sub := SubLink; sub < subReserved; sub++ {
				for arg := uint8(0); arg <= 0xF; arg++ {
					h := Header{Urgency: urgency, Dir: dir, Sub: sub, Arg: arg}
					raw, err := h.Encode()
					require.NoError(t, err)
					got, err := DecodeHeader(raw[:])
					require.NoError(t, err)
					if got != h {
						t.Fatalf("header mismatch: got %+v want %+v", got, h)
					}
				}
			}
		}
	}
}

func TestHeaderBitLayout(t *testing.T) {
	raw, err := CircuitHeader(DirSW, SubTalk, 9).Encode()
	require.NoError(t, err)
	assert.Equal(t, byte(0x80|0x05), raw[0])
	assert.Equal(t, byte(4<<5|9), raw[1])

	raw, err = LinkHeader(DirE, LinkCacheXG).Encode()
	require.NoError(t, err)
	assert.Equal(t, byte(0x82), raw[0])
	assert.Equal(t, byte(0x02), raw[1])
}

func TestHeaderEncodeRejectsOutOfRange(t *testing.T) {
	cases := []Header{
		{Urgency: 4},
		{Dir: DirCount},
		{Sub: subReserved},
		{Arg: 16},
	}
	for _, h := range cases {
		_, err := h.Encode()
		assert.Error(t, err, "%+v", h)
	}
}

func TestDecodeHeaderRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":         nil,
		"one byte":      {0x80},
		"no route flag": {0x02, 0x00},
		"reserved0":     {0x88, 0x00},
		"reserved1":     {0x80, 0x10},
	}
	for name, raw := range cases {
		_, err := DecodeHeader(raw)
		assert.Error(t, err, name)
	}
	_, err := DecodeHeader([]byte{0x80, 0xE0})
	assert.True(t, errors.Is(err, ErrReservedSubChannel))
	_, err = DecodeHeader([]byte{0x80})
	assert.True(t, errors.Is(err, ErrShortPacket))
}

func TestPacketMarshalLimits(t *testing.T) {
	p := Packet{Header: LinkHeader(DirNE, LinkCacheXG), Payload: make([]byte, MaxTriples*TripleLen)}
	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(raw), MaxPacketLen)

	p.Payload = make([]byte, MaxPacketLen-HeaderLen+1)
	_, err = p.Marshal()
	assert.ErrorIs(t, err, ErrPacketTooLong)

	parsed, err := ParsePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, SubLink, parsed.Header.Sub)
	assert.Len(t, parsed.Payload, MaxTriples*TripleLen)
}

func TestRingPayload(t *testing.T) {
	in := RingPayload{X: -3, Y: 100, Radius: 4, Yoink: true}
	raw, err := in.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, 100, 0x84}, raw)
	out, err := DecodeRing(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, Pt(-3, 100), out.Center())

	_, err = DecodeRing(raw[:2])
	assert.ErrorIs(t, err, ErrBadPayload)
	_, err = DecodeRing([]byte{0, 0, 0x08})
	assert.ErrorIs(t, err, ErrBadPayload)
	_, err = RingPayload{Radius: 8}.Encode()
	assert.Error(t, err)
}

func TestTriples(t *testing.T) {
	ts := []Triple{
		{X: 1, Y: 2, Atom: MakeAtom(7, 42)},
		{X: 200, Y: 3, Atom: EmptyAtom},
	}
	raw := AppendTriples(nil, ts...)
	require.Len(t, raw, 2*TripleLen)
	got, err := DecodeTriples(raw)
	require.NoError(t, err)
	assert.Equal(t, ts, got)

	_, err = DecodeTriples(raw[:TripleLen+1])
	assert.ErrorIs(t, err, ErrBadPayload)

	got, err = DecodeTriples(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAtomSanity(t *testing.T) {
	a := MakeAtom(3, 0xDEADBEEF)
	assert.True(t, a.IsSane())
	assert.Equal(t, uint16(3), a.Type())
	assert.Equal(t, uint64(0xDEADBEEF), a.Data())
	assert.True(t, EmptyAtom.IsSane())

	var zero Atom
	assert.False(t, zero.IsSane())

	corrupt := a
	corrupt[5] ^= 0x01
	assert.False(t, corrupt.IsSane())
	corrupt.Seal()
	assert.True(t, corrupt.IsSane())

	assert.False(t, MakeAtom(IllegalType, 0).IsSane())
}

func TestSubChannelAndCircuitPredicates(t *testing.T) {
	assert.False(t, SubLink.IsCircuit())
	for s := SubRing; s <= SubFlash; s++ {
		assert.True(t, s.IsCircuit(), s)
	}
	assert.False(t, subReserved.IsCircuit())

	release := map[CircuitState]bool{CircuitRung: true, CircuitAnswered: true, CircuitTalked: true}
	for s := CircuitUnused; s <= CircuitHungup; s++ {
		assert.Equal(t, release[s], s.NeedsRelease(), s)
		if s.Held() {
			assert.True(t, s.NeedsRelease(), s)
		}
	}
}
