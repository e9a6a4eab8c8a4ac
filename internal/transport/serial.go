package transport

import (
	"fmt"
	"sync"

	"github.com/pkg/term"
)

// validSpeeds are the baud rates the device's serial_port_open accepts.
var validSpeeds = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true, 115200: true,
}

// SerialPort is the real backend, a thin wrapper around github.com/pkg/term
// that reads one byte at a time on a dedicated goroutine and hands each
// byte to the installed rx callback as it arrives, until Close stops the
// loop.
type SerialPort struct {
	baseRx

	mu     sync.Mutex
	fd     *term.Term
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSerialPort constructs an unopened real serial transport.
func NewSerialPort() *SerialPort {
	return &SerialPort{}
}

func (s *SerialPort) Open(port string, baud int) error {
	fd, err := term.Open(port, term.RawMode)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", port, err)
	}

	switch {
	case baud == 0:
		// leave current speed alone
	case validSpeeds[baud]:
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return fmt.Errorf("transport: set speed %d on %s: %w", baud, port, err)
		}
	default:
		if err := fd.SetSpeed(4800); err != nil {
			fd.Close()
			return fmt.Errorf("transport: set fallback speed on %s: %w", port, err)
		}
	}

	s.mu.Lock()
	s.fd = fd
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(fd, s.stopCh, s.doneCh)
	return nil
}

func (s *SerialPort) readLoop(fd *term.Term, stop, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := fd.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			s.deliver([]byte{buf[0]})
		}
	}
}

func (s *SerialPort) Write(data []byte) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd == nil {
		return -1, fmt.Errorf("transport: write on closed port")
	}
	n, err := fd.Write(data)
	if err != nil || n != len(data) {
		return n, fmt.Errorf("transport: short write (%d/%d): %w", n, len(data), err)
	}
	return n, nil
}

func (s *SerialPort) Close() error {
	s.mu.Lock()
	fd := s.fd
	stop := s.stopCh
	s.fd = nil
	s.mu.Unlock()

	if fd == nil {
		return nil
	}
	if stop != nil {
		close(stop)
	}
	return fd.Close()
}
