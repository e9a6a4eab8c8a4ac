package transport

import "sync"

// FakePort is an in-memory, wired-pair transport used by tests and by the
// fake device harness: writing to one side delivers synchronously to the
// peer's rx callback, with no real I/O involved. Grounded on
// original_source/app/comm/serial_port.py's FakeSerialPort.
type FakePort struct {
	baseRx

	mu     sync.Mutex
	peer   *FakePort
	isOpen bool
	TxLog  [][]byte
	RxLog  [][]byte
}

// NewFakePort constructs an unconnected, unopened fake port.
func NewFakePort() *FakePort {
	return &FakePort{}
}

// ConnectPeer wires two fake ports together so each one's Write reaches the
// other's rx callback.
func ConnectPeer(a, b *FakePort) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (f *FakePort) Open(port string, baud int) error {
	f.mu.Lock()
	f.isOpen = true
	f.mu.Unlock()
	return nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	f.isOpen = false
	f.mu.Unlock()
	return nil
}

func (f *FakePort) Write(data []byte) (int, error) {
	f.mu.Lock()
	f.TxLog = append(f.TxLog, append([]byte(nil), data...))
	peer := f.peer
	f.mu.Unlock()

	if peer != nil && peer.isOpenSafe() {
		peer.deliverFromPeer(data)
	}
	return len(data), nil
}

func (f *FakePort) isOpenSafe() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isOpen
}

func (f *FakePort) deliverFromPeer(data []byte) {
	f.mu.Lock()
	f.RxLog = append(f.RxLog, append([]byte(nil), data...))
	f.mu.Unlock()
	f.deliver(data)
}
