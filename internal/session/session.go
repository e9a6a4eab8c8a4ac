// Package session implements the state machine that drives a single device
// connection: heartbeat scheduling, ACK-retry command transmission, and
// dispatch of incoming device frames, including the B1 three-way sequence
// discipline.
package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
	"github.com/yaoqih/material-identification-upper-computer/internal/logging"
	"github.com/yaoqih/material-identification-upper-computer/internal/protocol"
	"github.com/yaoqih/material-identification-upper-computer/internal/transport"
)

// State is one of the session's three connectivity states.
type State int

const (
	Disconnected State = iota
	Connected
	Offline
)

func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Offline:
		return "OFFLINE"
	default:
		return "DISCONNECTED"
	}
}

// RequestHandler is invoked synchronously from the RX path for each
// in-order B1, and must return the (indices, attrs, colors) payload to
// transmit back as A1. attrs and colors may be nil.
type RequestHandler func() (indices, attrs, colors []int)

// Session owns one transport connection and the protocol state machine
// layered over it.
type Session struct {
	transport      transport.Transport
	logger         *log.Logger
	deviceInfoLog  *log.Logger
	requestHandler RequestHandler

	mu              sync.Mutex
	rxBuf           []byte
	awaiting        map[uint16]bool
	acked           map[uint16]protocol.AckCode
	seq             uint16
	lastRemoteSeq   *uint16
	lastB1Seq       *uint16
	expectedSeq     *uint16
	lastB1AckCode   protocol.AckCode
	state           State
	offlineFailures int

	heartbeatInterval time.Duration
	offlineThreshold  int
	ackTimeoutMs      int
	cmdTimeoutMs      int
	bytesPerFrame     int
	interFrameGapMs   int
	duplicateAckMode  string

	retryEnabled   bool
	retryTimeoutMs int
	retryAttempts  int
	retryBackoffMs int

	hexCapture, hexIncoming, hexOutgoing bool
	hexMaxBytes                          int

	hbStop    chan struct{}
	hbRunning bool
	hbDone    sync.WaitGroup

	// OnA1Result, if set, is invoked after every send_a1_payload completes
	// with the AND-reduced per-chunk success outcome.
	OnA1Result func(ok bool)
}

// New builds a Session bound to transport t, installs the RX callback, and
// auto-starts the heartbeat scheduler when comm.enable_heartbeat is true
// (the default).
func New(cfg *config.Config, t transport.Transport, handler RequestHandler, logger, deviceInfoLog *log.Logger) *Session {
	if handler == nil {
		handler = func() ([]int, []int, []int) { return nil, nil, nil }
	}

	comm := cfg.Comm
	s := &Session{
		transport:      t,
		logger:         logger,
		deviceInfoLog:  deviceInfoLog,
		requestHandler: handler,

		awaiting:      map[uint16]bool{},
		acked:         map[uint16]protocol.AckCode{},
		lastB1AckCode: protocol.OK,
		state:         Disconnected,

		heartbeatInterval: time.Duration(comm.HeartbeatIntervalSeconds) * time.Second,
		offlineThreshold:  comm.OfflineFailureThreshold,
		ackTimeoutMs:      comm.AckTimeoutMs,
		cmdTimeoutMs:      comm.CmdTimeoutMs,
		bytesPerFrame:     comm.BytesPerFrame,
		interFrameGapMs:   comm.InterFrameGapMs,
		duplicateAckMode:  comm.DuplicateAckMode,

		retryEnabled:   boolOr(comm.Retry.Enabled, true),
		retryTimeoutMs: comm.Retry.AckTimeoutMs,
		retryAttempts:  comm.Retry.MaxAttempts,
		retryBackoffMs: comm.Retry.BackoffMs,

		hexCapture:   cfg.Logging.Hex.Capture,
		hexIncoming:  cfg.Logging.Hex.Incoming,
		hexOutgoing:  cfg.Logging.Hex.Outgoing,
		hexMaxBytes:  cfg.Logging.Hex.MaxBytes,

		hbStop: make(chan struct{}),
	}
	if s.retryTimeoutMs > 0 && s.ackTimeoutMs == 0 {
		s.ackTimeoutMs = s.retryTimeoutMs
	}

	t.SetRxCallback(s.onBytes)

	if boolOr(comm.EnableHeartbeat, true) {
		s.StartHeartbeat(s.heartbeatInterval)
	}
	return s
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (s *Session) setState(new State) {
	if s.state != new {
		s.logger.Info("session state", "from", s.state, "to", new)
		s.state = new
	}
}

// State reports the session's current connectivity state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextSeq returns the next outbound sequence number, monotonically
// increasing modulo 2^16 across all outbound A0/A1 frames from this session.
func (s *Session) NextSeq() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq = (s.seq + 1) & 0xFFFF
	return seq
}

func (s *Session) sendFrame(f protocol.Frame) {
	blob := protocol.Encode(f)
	if s.hexCapture && s.hexOutgoing {
		s.logger.Debug("tx hex", "bytes", logging.HexDump(blob, s.hexMaxBytes))
	}
	if _, err := s.transport.Write(blob); err != nil {
		s.logger.Debug("write failed", "err", err)
	}
	s.logger.Debug("tx", "type", f.Type, "seq", f.Seq, "len", len(f.Val))
}

// SendAndWaitAck writes frame, awaits its AF/BF, and retries per the
// comm.retry policy. timeoutMs, if non-nil, overrides the session's default
// per-attempt timeout.
func (s *Session) SendAndWaitAck(frame protocol.Frame, timeoutMs *int) bool {
	return s.sendAndWaitAck(frame, timeoutMs, false)
}

// sendAndWaitAck is the shared retry engine. singleShot forces exactly one
// attempt with no backoff, used by the periodic heartbeat scheduler to keep
// its cadence and offline-detection clock deterministic; explicit calls
// (SendHeartbeat, SendAndWaitAck) use the full retry policy.
func (s *Session) sendAndWaitAck(frame protocol.Frame, timeoutMs *int, singleShot bool) bool {
	attempts := 1
	backoff := time.Duration(0)
	if s.retryEnabled && !singleShot {
		attempts = s.retryAttempts
		if attempts < 1 {
			attempts = 1
		}
		backoff = time.Duration(s.retryBackoffMs) * time.Millisecond
	}

	perTry := s.ackTimeoutMs
	if timeoutMs != nil {
		perTry = *timeoutMs
	}
	perTryDuration := time.Duration(perTry) * time.Millisecond

	seq := frame.Seq
	for attempt := 0; attempt < attempts; attempt++ {
		s.mu.Lock()
		s.awaiting[seq] = true
		s.mu.Unlock()

		s.sendFrame(frame)

		deadline := time.Now().Add(perTryDuration)
		for time.Now().Before(deadline) {
			s.mu.Lock()
			code, ok := s.acked[seq]
			if ok {
				delete(s.acked, seq)
				delete(s.awaiting, seq)
				s.offlineFailures = 0
				if s.state != Connected {
					s.setState(Connected)
				}
				s.mu.Unlock()
				return code == protocol.OK
			}
			s.mu.Unlock()
			time.Sleep(time.Millisecond)
		}

		s.mu.Lock()
		delete(s.awaiting, seq)
		s.mu.Unlock()

		if attempt < attempts-1 {
			if backoff > 0 {
				time.Sleep(backoff)
			}
			continue
		}

		s.mu.Lock()
		s.offlineFailures++
		if s.offlineFailures >= s.offlineThreshold {
			s.setState(Offline)
		}
		s.mu.Unlock()
		return false
	}
	return false
}

// SendHeartbeat sends a single A0 under the full retry policy.
func (s *Session) SendHeartbeat(timeoutMs *int) bool {
	f := protocol.BuildA0(s.NextSeq())
	return s.SendAndWaitAck(f, timeoutMs)
}

// StartHeartbeat launches the periodic heartbeat goroutine, idempotent
// while already running. Schedule is deadline-based: next = next + interval;
// if a send overruns the interval, next re-anchors to now to avoid drift
// accumulation.
func (s *Session) StartHeartbeat(interval time.Duration) {
	s.mu.Lock()
	if s.hbRunning {
		s.mu.Unlock()
		return
	}
	s.hbRunning = true
	s.hbStop = make(chan struct{})
	stop := s.hbStop
	s.mu.Unlock()

	s.hbDone.Add(1)
	go func() {
		defer s.hbDone.Done()
		next := time.Now()
		for {
			select {
			case <-stop:
				return
			default:
			}

			f := protocol.BuildA0(s.NextSeq())
			s.sendAndWaitAck(f, nil, true)

			next = next.Add(interval)
			delay := time.Until(next)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			} else {
				next = time.Now()
			}
		}
	}()
	s.logger.Info("heartbeat scheduler started", "interval", interval)
}

// StopHeartbeat halts the heartbeat goroutine at its next poll and waits
// for it to exit.
func (s *Session) StopHeartbeat() {
	s.mu.Lock()
	if !s.hbRunning {
		s.mu.Unlock()
		return
	}
	s.hbRunning = false
	close(s.hbStop)
	s.mu.Unlock()

	s.hbDone.Wait()
	s.logger.Info("heartbeat scheduler stopped")
}

// Close stops the heartbeat scheduler. It does not close the transport,
// which the caller owns.
func (s *Session) Close() {
	s.StopHeartbeat()
}
