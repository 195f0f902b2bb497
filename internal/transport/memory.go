package transport

import (
	"errors"
	"sync"
)

var ErrChannelClosed = errors.New("transport channel closed")

// Pair is an in-memory Channel linked to one peer. Messages sent on one
// side are delivered synchronously to the other side's handler. Used in
// tests and single-process multi-engine setups.
type Pair struct {
	mu      sync.Mutex
	handler Handler
	peer    *Pair
	closed  bool
}

// NewPair returns two linked endpoints.
func NewPair() (*Pair, *Pair) {
	a := &Pair{}
	b := &Pair{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *Pair) Send(msg Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrChannelClosed
	}
	peer := p.peer
	p.mu.Unlock()

	peer.dispatch(msg)
	return nil
}

func (p *Pair) dispatch(msg Message) {
	p.mu.Lock()
	handler := p.handler
	closed := p.closed
	p.mu.Unlock()

	if closed || handler == nil {
		return
	}
	handler(msg)
}

func (p *Pair) OnMessage(fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = fn
}

func (p *Pair) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
