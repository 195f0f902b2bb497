package transport

import "sync"

// Fanout joins a local channel (the WebSocket hub) with a remote one
// (Redis pub/sub) into a single Channel. Engine sends reach both; remote
// messages are relayed to local clients before the engine sees them.
// Origin filtering on the remote side keeps relays from looping back.
type Fanout struct {
	local  Channel
	remote Channel

	mu      sync.Mutex
	handler Handler
}

func NewFanout(local, remote Channel) *Fanout {
	f := &Fanout{local: local, remote: remote}
	local.OnMessage(func(msg Message) {
		// Local client traffic goes out to the other peers as-is.
		_ = remote.Send(msg)
		f.dispatch(msg)
	})
	remote.OnMessage(func(msg Message) {
		_ = local.Send(msg)
		f.dispatch(msg)
	})
	return f
}

func (f *Fanout) dispatch(msg Message) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (f *Fanout) Send(msg Message) error {
	localErr := f.local.Send(msg)
	if err := f.remote.Send(msg); err != nil {
		return err
	}
	return localErr
}

func (f *Fanout) OnMessage(fn Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
}

func (f *Fanout) Close() error {
	localErr := f.local.Close()
	if err := f.remote.Close(); err != nil {
		return err
	}
	return localErr
}
