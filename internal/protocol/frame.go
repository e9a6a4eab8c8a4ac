// Package protocol implements the binary framed wire protocol spoken between
// the upper computer and the LED matrix device.
//
// Frame layout, all integers little-endian:
//
//	HEADER(4) = F2 F8 F1 F2 | TYPE(1) | LEN(2) | SEQ(2) | VAL(N) | CHECK(1)
//
// LEN counts SEQ+VAL+CHECK, i.e. len(VAL)+3. CHECK is the low byte of the sum
// of TYPE, LEN, SEQ and VAL (HEADER and CHECK itself are excluded).
package protocol

import (
	"encoding/binary"
)

// Header is the fixed four-byte sync marker that opens every frame.
var Header = []byte{0xF2, 0xF8, 0xF1, 0xF2}

// MinFrameLen is the smallest possible on-wire frame: header, type, len,
// seq and check with an empty VAL.
const MinFrameLen = 4 + 1 + 2 + 2 + 1

// FrameType identifies the direction and purpose of a frame.
type FrameType byte

const (
	// A0 is the host's empty heartbeat frame.
	A0 FrameType = 0xA0
	// A1 is a host command frame carrying one or more packed LED items.
	A1 FrameType = 0xA1
	// AF is the host's acknowledgement of a device frame.
	AF FrameType = 0xAF
	// B0 is the device's empty heartbeat frame.
	B0 FrameType = 0xB0
	// B1 is a device request frame.
	B1 FrameType = 0xB1
	// BF is the device's acknowledgement of a host frame.
	BF FrameType = 0xBF
)

// AckCode is the single-byte result code carried in the VAL of AF and BF
// frames.
//
// LenError and Duplicate both marshal to the wire value 0x02. Duplicate is
// never produced by the codec itself — the session layer sends it as the AF
// code for a B1 it has already answered — but it
// shares LenError's wire value by deliberate, documented convention rather
// than coincidence, so the two are kept as distinct Go constants instead of
// one shared name.
type AckCode byte

const (
	OK             AckCode = 0x00
	UnknownType    AckCode = 0x01
	LenError       AckCode = 0x02
	Duplicate      AckCode = 0x02
	SeqTooSmall    AckCode = 0x03
	SeqTooLarge    AckCode = 0x04
	ValError       AckCode = 0x05
	ChecksumError  AckCode = 0x06
)

// Frame is a decoded protocol message.
type Frame struct {
	Type FrameType
	Seq  uint16
	Val  []byte
}

func calcCheck(ftype byte, length uint16, seq uint16, val []byte) byte {
	var sum uint32
	sum += uint32(ftype)
	sum += uint32(byte(length))
	sum += uint32(byte(length >> 8))
	sum += uint32(byte(seq))
	sum += uint32(byte(seq >> 8))
	for _, b := range val {
		sum += uint32(b)
	}
	return byte(sum & 0xFF)
}

// Encode serializes a Frame to its on-wire representation.
func Encode(f Frame) []byte {
	val := f.Val
	length := uint16(2 + len(val) + 1)
	chk := calcCheck(byte(f.Type), length, f.Seq, val)

	out := make([]byte, 0, 4+1+2+2+len(val)+1)
	out = append(out, Header...)
	out = append(out, byte(f.Type))
	out = binary.LittleEndian.AppendUint16(out, length)
	out = binary.LittleEndian.AppendUint16(out, f.Seq)
	out = append(out, val...)
	out = append(out, chk)
	return out
}

// BuildA0 constructs the host's empty heartbeat frame.
func BuildA0(seq uint16) Frame {
	return Frame{Type: A0, Seq: seq, Val: nil}
}

// BuildAF constructs a host acknowledgement frame for the given sequence
// number and result code.
func BuildAF(seq uint16, code AckCode) Frame {
	return Frame{Type: AF, Seq: seq, Val: []byte{byte(code)}}
}

// BuildA1 packs indices (13-bit LED ids), optional blink attrs and optional
// color codes into a single A1 command frame. attrs and colors may be
// shorter than indices or nil; missing entries default to no-blink / red.
//
// Per-item bitfield, little-endian uint16:
//
//	bit15      blink flag
//	bits14-13  color code: 0=red 1=green 2=blue 3=reserved
//	bits12-0   LED id (13 bits)
func BuildA1(seq uint16, indices []int, attrs []int, colors []int) Frame {
	val := make([]byte, 0, len(indices)*2)
	for i, idx := range indices {
		idx13 := uint16(idx) & 0x1FFF
		var blink uint16
		if i < len(attrs) && attrs[i]&0x01 != 0 {
			blink = 1
		}
		var color uint16
		if i < len(colors) {
			color = uint16(colors[i]) & 0x03
		}
		packed := (blink << 15) | (color << 13) | idx13
		val = binary.LittleEndian.AppendUint16(val, packed)
	}
	return Frame{Type: A1, Seq: seq, Val: val}
}

// UnpackA1Item decodes a single 2-byte A1 item into (ledID, blink, color).
func UnpackA1Item(item uint16) (ledID int, blink bool, color int) {
	ledID = int(item & 0x1FFF)
	blink = item&0x8000 != 0
	color = int((item >> 13) & 0x03)
	return
}
