// Package transport provides the byte-stream abstraction the session layer
// drives: open a device, write frames to it, and receive raw bytes back
// through a callback. A real serial backend and an in-memory fake backend
// share this one interface so the session state machine never needs to know
// which one it is talking to.
package transport

import "sync"

// RxFunc receives raw bytes as they arrive from the device. SerialPort
// invokes it from a dedicated read goroutine it owns; FakePort invokes it
// synchronously on the goroutine that called the peer's Write.
type RxFunc func(data []byte)

// Transport is the abstraction the session layer drives to exchange raw
// bytes with a device, independent of whether that device is a real serial
// port or an in-memory peer used in tests.
type Transport interface {
	// Open connects to the device at port with the given baud rate. baud
	// of 0 leaves the current speed alone.
	Open(port string, baud int) error
	// SetRxCallback installs the function invoked whenever bytes arrive.
	// Must be called before Open for the callback to see all traffic.
	SetRxCallback(cb RxFunc)
	// Write sends data to the device, returning the number of bytes
	// written and any error.
	Write(data []byte) (int, error)
	// Close releases the underlying device. Safe to call more than once.
	Close() error
}

// baseRx is the shared rx-callback bookkeeping both backends embed.
type baseRx struct {
	mu sync.RWMutex
	cb RxFunc
}

func (b *baseRx) SetRxCallback(cb RxFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = cb
}

func (b *baseRx) deliver(data []byte) {
	b.mu.RLock()
	cb := b.cb
	b.mu.RUnlock()
	if cb != nil {
		cb(data)
	}
}
