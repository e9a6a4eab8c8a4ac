package protocol

import (
	"bytes"
	"encoding/binary"
)

// ErrorFunc is invoked when a framed section fails validation. seq is best
// effort: zero when the frame was too short to contain a sequence number.
type ErrorFunc func(code AckCode, seq uint16)

// GarbageFunc is invoked with any bytes preceding a recognized header, or,
// when no full header is present, with the buffer up to any trailing bytes
// that could still be the start of a header. These bytes are
// typically ASCII banners or noise the device emits outside the protocol.
type GarbageFunc func(data []byte)

// DecodeStream extracts as many complete frames as possible from buf,
// in place, leaving any incomplete trailing bytes for the next call.
//
// Decoding proceeds header by header:
//
//  1. Locate Header in buf. If absent, the buffer is garbage except for a
//     trailing partial header, which is kept for the next call.
//  2. Bytes preceding a located header are garbage.
//  3. If fewer than 7 bytes remain (header+type+len), wait for more.
//  4. If the declared length is below the minimum semantic length (3,
//     for SEQ+CHECK), report LenError and skip past the bad section —
//     skipping the full declared length if present, otherwise just the
//     header, to guarantee forward progress.
//  5. If the full frame (per declared length) hasn't arrived yet, wait
//     for more bytes.
//  6. Checksum mismatch reports ChecksumError.
//  7. An unrecognized TYPE reports UnknownType.
//  8. A recognized TYPE with a VAL length that violates its shape
//     (A0/B0/B1 must be empty, AF/BF must be exactly 1 byte, A1 must be
//     an even number of bytes) reports ValError; otherwise the frame is
//     appended to the result.
//
// Whether or not a section validates, decoding always advances past it —
// a single malformed frame never blocks frames that follow it.
func DecodeStream(buf *[]byte, onError ErrorFunc, onGarbage GarbageFunc) []Frame {
	var frames []Frame

	for {
		idx := indexHeader(*buf)
		if idx == -1 {
			keep := 0
			for k := len(Header) - 1; k > 0; k-- {
				if len(*buf) >= k && bytes.Equal((*buf)[len(*buf)-k:], Header[:k]) {
					keep = k
					break
				}
			}
			cut := len(*buf) - keep
			if onGarbage != nil && cut > 0 {
				onGarbage((*buf)[:cut])
			}
			*buf = append((*buf)[:0], (*buf)[cut:]...)
			break
		}
		if idx > 0 {
			if onGarbage != nil {
				onGarbage((*buf)[:idx])
			}
			*buf = (*buf)[idx:]
		}

		if len(*buf) < 7 {
			break
		}

		ftype := (*buf)[4]
		length := binary.LittleEndian.Uint16((*buf)[5:7])

		if length < 3 {
			var seq uint16
			if len(*buf) >= 9 {
				seq = binary.LittleEndian.Uint16((*buf)[7:9])
			}
			if onError != nil {
				onError(LenError, seq)
			}
			totalBad := 4 + 1 + 2 + int(length)
			if len(*buf) >= totalBad {
				*buf = (*buf)[totalBad:]
			} else {
				*buf = (*buf)[4:]
			}
			continue
		}

		total := 4 + 1 + 2 + int(length)
		if len(*buf) < total {
			break
		}

		seq := binary.LittleEndian.Uint16((*buf)[7:9])
		valLen := int(length) - 3
		vstart := 9
		vend := vstart + valLen
		val := (*buf)[vstart:vend]
		chk := (*buf)[vend]
		calc := calcCheck(ftype, length, seq, val)

		if chk != calc {
			if onError != nil {
				onError(ChecksumError, seq)
			}
			*buf = (*buf)[total:]
			continue
		}

		ft := FrameType(ftype)
		switch ft {
		case A0, B0, B1:
			if valLen != 0 {
				if onError != nil {
					onError(ValError, seq)
				}
			} else {
				frames = append(frames, Frame{Type: ft, Seq: seq, Val: cloneVal(val)})
			}
		case AF, BF:
			if valLen != 1 {
				if onError != nil {
					onError(ValError, seq)
				}
			} else {
				frames = append(frames, Frame{Type: ft, Seq: seq, Val: cloneVal(val)})
			}
		case A1:
			if valLen%2 != 0 {
				if onError != nil {
					onError(ValError, seq)
				}
			} else {
				frames = append(frames, Frame{Type: ft, Seq: seq, Val: cloneVal(val)})
			}
		default:
			if onError != nil {
				onError(UnknownType, seq)
			}
		}

		*buf = (*buf)[total:]
	}

	return frames
}

func cloneVal(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func indexHeader(buf []byte) int {
	if len(buf) < len(Header) {
		return -1
	}
	for i := 0; i+len(Header) <= len(buf); i++ {
		if buf[i] == Header[0] && buf[i+1] == Header[1] && buf[i+2] == Header[2] && buf[i+3] == Header[3] {
			return i
		}
	}
	return -1
}
