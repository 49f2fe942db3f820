package transport

import (
	"sync"

	"github.com/juju/errors"

	"github.com/ecoledger/carbonet/log2"
)

// Mock is an in-process Net. Delivery is synchronous: Send runs the bound
// handler on the caller's goroutine before returning. FailNext injects
// transmit failures per destination, which is how tests and scenarios
// model a lossy channel.
type Mock struct {
	log *log2.Log

	mu       sync.Mutex
	handlers map[string]Handler
	failures map[string]int
	closed   bool
}

func NewMock(log *log2.Log) *Mock {
	return &Mock{
		log:      log,
		handlers: make(map[string]Handler),
		failures: make(map[string]int),
	}
}

func (m *Mock) Bind(addr string, h Handler) (Binding, error) {
	if h == nil {
		return nil, errors.Errorf("transport: nil handler addr=%s", addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.handlers[addr]; ok {
		return nil, errors.Errorf("transport: addr=%s already bound", addr)
	}
	m.handlers[addr] = h
	m.log.Debugf("mock bind addr=%s", addr)
	return &mockBinding{m: m, addr: addr}, nil
}

func (m *Mock) Open(addr string) (Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return &mockSender{m: m, addr: addr}, nil
}

// FailNext makes the next n sends toward addr report failure.
func (m *Mock) FailNext(addr string, n int) {
	m.mu.Lock()
	m.failures[addr] += n
	m.mu.Unlock()
}

// Close tears down the whole net. Subsequent sends report failure.
func (m *Mock) Close() {
	m.mu.Lock()
	m.closed = true
	m.handlers = make(map[string]Handler)
	m.mu.Unlock()
}

func (m *Mock) deliver(addr string, payload []byte) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.failures[addr] > 0 {
		m.failures[addr]--
		m.mu.Unlock()
		m.log.Debugf("mock injected failure addr=%s", addr)
		return false
	}
	h := m.handlers[addr]
	m.mu.Unlock()
	if h == nil {
		// nobody listening, packet is lost
		return false
	}
	h(payload)
	return true
}

func (m *Mock) unbind(addr string) {
	m.mu.Lock()
	delete(m.handlers, addr)
	m.mu.Unlock()
}

type mockSender struct {
	m      *Mock
	addr   string
	mu     sync.Mutex
	closed bool
}

func (s *mockSender) Send(payload []byte) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	return s.m.deliver(s.addr, payload)
}

func (s *mockSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type mockBinding struct {
	m    *Mock
	addr string
	once sync.Once
}

func (b *mockBinding) Close() error {
	b.once.Do(func() { b.m.unbind(b.addr) })
	return nil
}
