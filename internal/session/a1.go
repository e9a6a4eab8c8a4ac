package session

import (
	"time"

	"github.com/yaoqih/material-identification-upper-computer/internal/protocol"
)

// sendA1Payload chunks indices/attrs/colors into A1 frames sized to
// comm.bytes_per_frame, sends each chunk in order with its own fresh
// sequence number, and AND-reduces the per-chunk outcomes into a single
// success boolean. An empty indices list still sends exactly one frame
// with zero items, used to clear the display or maintain cadence.
func (s *Session) sendA1Payload(indices, attrs, colors []int) {
	const perItemBytes = 2
	maxValBytes := s.bytesPerFrame
	if maxValBytes < 1 {
		maxValBytes = 1
	}
	chunkSize := maxValBytes / perItemBytes
	if chunkSize < 1 {
		chunkSize = 1
	}

	timeout := s.cmdTimeoutMs

	if len(indices) == 0 {
		seq := s.NextSeq()
		frame := protocol.BuildA1(seq, nil, nil, nil)
		ok := s.SendAndWaitAck(frame, &timeout)
		s.reportA1Result(ok)
		return
	}

	allOK := true
	for i := 0; i < len(indices); i += chunkSize {
		end := i + chunkSize
		if end > len(indices) {
			end = len(indices)
		}
		chunk := indices[i:end]

		var attrChunk, colorChunk []int
		if attrs != nil {
			attrChunk = sliceBounded(attrs, i, end)
		}
		if colors != nil {
			colorChunk = sliceBounded(colors, i, end)
		}

		seq := s.NextSeq()
		frame := protocol.BuildA1(seq, chunk, attrChunk, colorChunk)
		ok := s.SendAndWaitAck(frame, &timeout)
		allOK = allOK && ok

		if end < len(indices) && s.interFrameGapMs > 0 {
			time.Sleep(time.Duration(s.interFrameGapMs) * time.Millisecond)
		}
	}

	s.reportA1Result(allOK)
}

func sliceBounded(s []int, start, end int) []int {
	if start >= len(s) {
		return nil
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

func (s *Session) reportA1Result(ok bool) {
	if s.OnA1Result != nil {
		s.OnA1Result(ok)
	}
}
