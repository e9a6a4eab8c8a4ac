package session

import (
	"github.com/yaoqih/material-identification-upper-computer/internal/logging"
	"github.com/yaoqih/material-identification-upper-computer/internal/protocol"
)

// decodeError is a recorded decode failure, queued during DecodeStream and
// replayed as an AF reply once the session lock is released.
type decodeError struct {
	code protocol.AckCode
	seq  uint16
}

// onBytes is the transport RX callback: it appends to the session's owned
// receive buffer, runs the codec over it, and dispatches every complete
// frame. DecodeStream's error/garbage callbacks only record what happened;
// the actual AF replies and garbage logging happen after the session lock
// is released, so a transport that loops a reply straight back into this
// same callback (as the in-memory fake does) can never self-deadlock on
// s.mu.
func (s *Session) onBytes(data []byte) {
	var decodeErrs []decodeError
	var garbage [][]byte

	s.mu.Lock()
	s.rxBuf = append(s.rxBuf, data...)
	if s.hexCapture && s.hexIncoming {
		s.logger.Debug("rx hex", "bytes", logging.HexDump(data, s.hexMaxBytes))
	}

	frames := protocol.DecodeStream(&s.rxBuf,
		func(code protocol.AckCode, seq uint16) {
			decodeErrs = append(decodeErrs, decodeError{code, seq})
		},
		func(chunk []byte) {
			garbage = append(garbage, append([]byte(nil), chunk...))
		},
	)
	s.mu.Unlock()

	for _, g := range garbage {
		s.onGarbage(g)
	}
	for _, de := range decodeErrs {
		s.logger.Debug("decode error", "code", de.code, "seq", de.seq)
		s.sendFrame(protocol.BuildAF(de.seq, de.code))
	}
	for _, fr := range frames {
		s.handleFrame(fr)
	}
}

// onGarbage forwards non-protocol bytes (typically ASCII device banners) to
// the dedicated device-info sink.
func (s *Session) onGarbage(data []byte) {
	if s.deviceInfoLog != nil {
		s.deviceInfoLog.Info(string(data))
	}
}

// handleFrame runs the business logic for one decoded frame: BF/B0
// bookkeeping, or the B1 three-way sequence discipline.
func (s *Session) handleFrame(fr protocol.Frame) {
	s.mu.Lock()
	seq := fr.Seq
	s.lastRemoteSeq = &seq

	switch fr.Type {
	case protocol.BF:
		code := protocol.AckCode(0)
		if len(fr.Val) > 0 {
			code = protocol.AckCode(fr.Val[0])
		}
		s.acked[fr.Seq] = code
		s.offlineFailures = 0
		if s.state != Connected {
			s.setState(Connected)
		}
		s.mu.Unlock()
		return

	case protocol.B0:
		s.offlineFailures = 0
		if s.state != Connected {
			s.setState(Connected)
		}
		s.mu.Unlock()
		s.sendFrame(protocol.BuildAF(fr.Seq, protocol.OK))
		return

	case protocol.B1:
		s.handleB1(fr)
		return

	default:
		s.mu.Unlock()
		return
	}
}

// handleB1 implements the three-way sequence discipline: duplicate,
// out-of-order, and in-order B1 delivery. Called with s.mu held; releases
// it before any frame send or handler invocation so those never run while
// holding the session lock.
func (s *Session) handleB1(fr protocol.Frame) {
	if s.lastB1Seq != nil && fr.Seq == *s.lastB1Seq {
		mode := s.duplicateAckMode
		ackCode := s.lastB1AckCode
		s.mu.Unlock()

		if mode == "echo_last" {
			s.sendFrame(protocol.BuildAF(fr.Seq, ackCode))
			s.logger.Debug("dup B1 echo_last", "seq", fr.Seq, "code", ackCode)
		} else {
			s.sendFrame(protocol.BuildAF(fr.Seq, protocol.Duplicate))
			s.logger.Debug("dup B1", "seq", fr.Seq)
		}
		return
	}

	if s.lastB1Seq != nil {
		expected := (*s.lastB1Seq + 1) & 0xFFFF
		if fr.Seq != expected {
			code := protocol.SeqTooLarge
			if fr.Seq < expected {
				code = protocol.SeqTooSmall
			}
			s.lastB1AckCode = code
			s.mu.Unlock()
			s.sendFrame(protocol.BuildAF(fr.Seq, code))
			s.logger.Debug("out-of-order B1", "seq", fr.Seq, "expected", expected, "code", code)
			return
		}
	}

	seq := fr.Seq
	s.lastB1Seq = &seq
	expected := (fr.Seq + 1) & 0xFFFF
	s.expectedSeq = &expected
	s.lastB1AckCode = protocol.OK
	s.mu.Unlock()

	s.sendFrame(protocol.BuildAF(fr.Seq, protocol.OK))

	indices, attrs, colors := s.requestHandler()
	s.sendA1Payload(indices, attrs, colors)
}
