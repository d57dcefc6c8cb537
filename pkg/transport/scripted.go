package transport

import (
	"context"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// ErrClosed is returned by a Scripted transport after Close.
var ErrClosed = pkgerrors.New("transport closed")

// Scripted is an in-memory Transport that replays canned device output. Once
// the script runs out, ReceiveUntil blocks like a silent device until its
// context is done. It is safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	pending  string
	sent     []string
	closed   bool
	readErr  error
	onSend   func(line string) []string
	closedCh chan struct{}
	moreCh   chan struct{}
}

var _ Transport = &Scripted{}

// NewScripted returns a transport whose device output is the concatenation of
// lines. Each line must carry its own terminator.
func NewScripted(lines ...string) *Scripted {
	return &Scripted{
		pending:  strings.Join(lines, ""),
		closedCh: make(chan struct{}),
		moreCh:   make(chan struct{}, 1),
	}
}

// OnTransmit installs a responder: every transmitted line is passed to fn and
// the returned lines are appended to the device output.
func (s *Scripted) OnTransmit(fn func(line string) []string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
	return s
}

// FailReads makes ReceiveUntil return err once the script is exhausted.
func (s *Scripted) FailReads(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
	return s
}

// Push appends device output.
func (s *Scripted) Push(lines ...string) {
	s.mu.Lock()
	s.pending += strings.Join(lines, "")
	s.mu.Unlock()
	select {
	case s.moreCh <- struct{}{}:
	default:
	}
}

// Sent returns every transmitted line in order.
func (s *Scripted) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scripted) Transmit(line string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.sent = append(s.sent, line)
	fn := s.onSend
	s.mu.Unlock()

	if fn != nil {
		s.Push(fn(line)...)
	}
	return nil
}

func (s *Scripted) ReceiveUntil(ctx context.Context, terminator string) (string, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return "", ErrClosed
		}
		if i := strings.Index(s.pending, terminator); i >= 0 {
			end := i + len(terminator)
			line := s.pending[:end]
			s.pending = s.pending[end:]
			s.mu.Unlock()
			return line, nil
		}
		readErr := s.readErr
		s.mu.Unlock()

		if readErr != nil {
			return "", readErr
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.closedCh:
			return "", ErrClosed
		case <-s.moreCh:
		}
	}
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	close(s.closedCh)
	return nil
}
