package dispatcher

import "sync"

// Fake is a deterministic in-memory Dispatcher for tests: Submit calls
// are recorded and answered synchronously by a caller-supplied handler,
// so tests can simulate backend command semantics without any network
// dependency.
type Fake struct {
	mu     sync.Mutex
	closed bool
	calls  []Command

	// Handle, when set, computes the Reply for each submitted command.
	// Defaults to returning an empty successful Reply.
	Handle func(Command) Reply
}

// NewFake constructs a Fake with the default no-op handler.
func NewFake() *Fake {
	return &Fake{}
}

// Submit implements Dispatcher. A command submitted after Close is
// dropped silently, matching the at-most-once completion guarantee.
func (f *Fake) Submit(cmd Command, done CompletionFunc) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.calls = append(f.calls, cmd)
	handle := f.Handle
	f.mu.Unlock()

	if handle == nil {
		done(Reply{})
		return
	}
	done(handle(cmd))
}

// Close implements Dispatcher.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns every command submitted so far, in order.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

var _ Dispatcher = (*Fake)(nil)
