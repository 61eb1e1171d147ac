package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ardnew/dmauart/event"
	"github.com/ardnew/dmauart/pkg"
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	BufferSize   int           // size of each receive buffer
	Buffers      int           // receive buffers rotated through the engine
	IdleTimeout  time.Duration // receive timeout passed to EnableReceive
	WriteTimeout time.Duration // send timeout; zero waits indefinitely
}

// DefaultStreamConfig returns a configuration suited to interactive links.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:  256,
		Buffers:     2,
		IdleTimeout: time.Millisecond,
	}
}

// Stream adapts an Engine to blocking I/O. It owns the engine callback and
// the receive session: received data is copied out of the rotating buffers
// into an internal queue that Read drains.
type Stream struct {
	e    *Engine
	cfg  StreamConfig
	pool [][]byte
	next int

	mutex   sync.Mutex
	data    []byte
	err     error // terminal receive error, reported once data is drained
	closed  bool
	forward event.Callback

	notify  chan struct{}
	txDone  chan event.Event
	writeMu sync.Mutex
}

var _ io.ReadWriteCloser = (*Stream)(nil)

// NewStream installs the stream as e's callback and starts receiving.
func NewStream(e *Engine, cfg StreamConfig) (*Stream, error) {
	if e == nil || cfg.BufferSize <= 0 {
		return nil, pkg.ErrInvalidArgument
	}
	if cfg.Buffers < 2 {
		cfg.Buffers = 2
	}

	s := &Stream{
		e:      e,
		cfg:    cfg,
		pool:   make([][]byte, cfg.Buffers),
		notify: make(chan struct{}, 1),
		txDone: make(chan event.Event, 1),
	}
	for i := range s.pool {
		s.pool[i] = make([]byte, cfg.BufferSize)
	}

	e.SetCallback(s.handle)
	if err := e.EnableReceive(s.takeBuffer(), cfg.IdleTimeout); err != nil {
		e.SetCallback(nil)
		return nil, err
	}
	return s, nil
}

// OnEvent registers a callback receiving every event after the stream
// handled it. It runs in the engine's delivering context.
func (s *Stream) OnEvent(cb event.Callback) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.forward = cb
}

// Read implements [io.Reader].
func (s *Stream) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext reads received data, blocking until some is available, the
// session ends or ctx is done. After the session ends, buffered data is
// returned first; then RxStopped surfaces as its reason's error and
// RxDisabled as [io.EOF].
func (s *Stream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		s.mutex.Lock()
		if len(s.data) > 0 {
			n := copy(p, s.data)
			s.data = s.data[n:]
			s.mutex.Unlock()
			return n, nil
		}
		err := s.err
		s.mutex.Unlock()
		if err != nil {
			return 0, err
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Write implements [io.Writer].
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext sends p and waits for the send to finish. An aborted send
// returns the bytes sent and [pkg.ErrAborted]; cancelling ctx aborts the send.
func (s *Stream) WriteContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mutex.Lock()
	closed := s.closed
	s.mutex.Unlock()
	if closed {
		return 0, pkg.ErrClosed
	}

	if err := s.e.Send(p, s.cfg.WriteTimeout); err != nil {
		return 0, err
	}

	var ev event.Event
	select {
	case ev = <-s.txDone:
	case <-ctx.Done():
		s.e.AbortSend()
		ev = <-s.txDone
		if ev.Type == event.TxDone {
			return ev.Len, nil
		}
		return ev.Len, ctx.Err()
	}
	if ev.Type == event.TxAborted {
		return ev.Len, pkg.ErrAborted
	}
	return ev.Len, nil
}

// Close ends the receive session and aborts any send in flight. Reads
// return buffered data, then [io.EOF].
func (s *Stream) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	s.e.DisableReceive()
	s.e.AbortSend()
	return nil
}

// Buffered returns the number of received bytes not yet read.
func (s *Stream) Buffered() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.data)
}

func (s *Stream) takeBuffer() []byte {
	buf := s.pool[s.next]
	s.next = (s.next + 1) % len(s.pool)
	return buf
}

// handle is the engine callback.
func (s *Stream) handle(ev event.Event) {
	s.mutex.Lock()
	switch ev.Type {
	case event.RxReady:
		s.data = append(s.data, ev.Data()...)
	case event.RxBufRequest:
		if !s.closed {
			if err := s.e.BufferResponse(s.takeBuffer()); err != nil {
				pkg.LogWarn(pkg.ComponentEngine, "stream buffer refused", "error", err)
			}
		}
	case event.RxStopped:
		if s.err == nil {
			s.err = ev.Reason.Error()
		}
	case event.RxDisabled:
		if s.err == nil {
			s.err = io.EOF
		}
	}
	forward := s.forward
	s.mutex.Unlock()

	switch ev.Type {
	case event.RxReady, event.RxStopped, event.RxDisabled:
		s.signal()
	case event.TxDone, event.TxAborted:
		select {
		case s.txDone <- ev:
		default:
		}
	}

	if forward != nil {
		forward(ev)
	}
}

func (s *Stream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
