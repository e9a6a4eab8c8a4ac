package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := BuildA1(7, []int{1, 2, 8191}, []int{1, 0, 1}, []int{0, 1, 2})
	raw := Encode(f)

	var errs []AckCode
	got := DecodeStream(&raw, func(code AckCode, seq uint16) {
		errs = append(errs, code)
	}, nil)

	require.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, A1, got[0].Type)
	assert.Equal(t, uint16(7), got[0].Seq)
	assert.Len(t, got[0].Val, 6)
}

func TestDecodeStreamGarbagePrefix(t *testing.T) {
	var garbage []byte
	buf := append([]byte("DW TNC READY\r\n"), Encode(BuildA0(0xFFFF))...)

	frames := DecodeStream(&buf, nil, func(data []byte) {
		garbage = append(garbage, data...)
	})

	require.Len(t, frames, 1)
	assert.Equal(t, A0, frames[0].Type)
	assert.Equal(t, []byte("DW TNC READY\r\n"), garbage)
	assert.Empty(t, buf)
}

func TestDecodeStreamChecksumError(t *testing.T) {
	buf := Encode(BuildAF(3, OK))
	buf[len(buf)-1] ^= 0xFF

	var got []AckCode
	frames := DecodeStream(&buf, func(code AckCode, seq uint16) {
		got = append(got, code)
		assert.Equal(t, uint16(3), seq)
	}, nil)

	assert.Empty(t, frames)
	assert.Equal(t, []AckCode{ChecksumError}, got)
}

func TestDecodeStreamUnknownType(t *testing.T) {
	buf := Encode(BuildAF(9, OK))
	buf[4] = 0xC4 // not a recognized FrameType, checksum now mismatches too
	// Recompute checksum so the frame reaches the type check.
	buf[len(buf)-1] = calcCheck(buf[4], 3, 9, buf[9:10])

	var got []AckCode
	frames := DecodeStream(&buf, func(code AckCode, seq uint16) {
		got = append(got, code)
	}, nil)

	assert.Empty(t, frames)
	assert.Equal(t, []AckCode{UnknownType}, got)
}

func TestDecodeStreamValErrorOddA1(t *testing.T) {
	f := Frame{Type: A1, Seq: 1, Val: []byte{0x01}}
	buf := Encode(f)

	var got []AckCode
	frames := DecodeStream(&buf, func(code AckCode, seq uint16) {
		got = append(got, code)
	}, nil)

	assert.Empty(t, frames)
	assert.Equal(t, []AckCode{ValError}, got)
}

func TestDecodeStreamLenErrorAdvances(t *testing.T) {
	// LEN below the semantic minimum of 3 must not deadlock the parser:
	// a well-formed frame placed right after it must still decode.
	bad := append([]byte{}, Header...)
	bad = append(bad, byte(A0), 0x01, 0x00, 0x00, 0x00)
	good := Encode(BuildA0(0x0042))

	buf := append(bad, good...)

	var errs []AckCode
	frames := DecodeStream(&buf, func(code AckCode, seq uint16) {
		errs = append(errs, code)
	}, nil)

	require.Equal(t, []AckCode{LenError}, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, uint16(0x0042), frames[0].Seq)
}

func TestDuplicateAndLenErrorShareWireValue(t *testing.T) {
	assert.EqualValues(t, 0x02, LenError)
	assert.EqualValues(t, 0x02, Duplicate)
}

func TestA1ItemBitfieldPackUnpack(t *testing.T) {
	f := BuildA1(0, []int{4097}, []int{1}, []int{2})
	var item uint16
	item = uint16(f.Val[0]) | uint16(f.Val[1])<<8

	id, blink, color := UnpackA1Item(item)
	assert.Equal(t, 4097, id)
	assert.True(t, blink)
	assert.Equal(t, 2, color)
}

// TestRapidEncodeDecodeRoundTrip exercises invariant 1 (every well-formed
// frame round-trips through Encode/DecodeStream unchanged) across randomly
// generated frame shapes.
func TestRapidEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.Uint16().Draw(t, "seq")
		kind := rapid.SampledFrom([]FrameType{A0, B0, B1, AF, BF, A1}).Draw(t, "type")

		var val []byte
		switch kind {
		case A0, B0, B1:
			val = nil
		case AF, BF:
			val = []byte{rapid.Byte().Draw(t, "ackByte")}
		case A1:
			n := rapid.IntRange(0, 8).Draw(t, "nItems")
			val = make([]byte, 0, n*2)
			for i := 0; i < n; i++ {
				item := rapid.Uint16().Draw(t, "item")
				val = append(val, byte(item), byte(item>>8))
			}
		}

		f := Frame{Type: kind, Seq: seq, Val: val}
		raw := Encode(f)

		var errs []AckCode
		got := DecodeStream(&raw, func(code AckCode, _ uint16) {
			errs = append(errs, code)
		}, nil)

		if !assert.Empty(t, errs) {
			return
		}
		if !assert.Len(t, got, 1) {
			return
		}
		assert.Equal(t, f.Type, got[0].Type)
		assert.Equal(t, f.Seq, got[0].Seq)
		assert.Equal(t, f.Val, got[0].Val)
		assert.Empty(t, raw)
	})
}
