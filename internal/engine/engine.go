// Package engine implements the single-threaded event loop at the heart
// of the SDL client runtime: file descriptor readiness multiplexing, an
// absolute-deadline timer queue sharing one OS timer object, and a
// cross-thread callback inbox drained on the loop goroutine.
//
// Modeled on an inbox swap-and-drain pattern and a goroutine-affinity
// check paired with epoll-style readiness polling, simplified to a
// single inbox and a single timer queue: no microtasks, no promises, no
// dual fast/slow path.
package engine

import (
	"container/heap"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nearrt-ric/sdl-go/internal/sysiface"
	"github.com/nearrt-ric/sdl-go/sdllog"
)

var (
	// ErrNilCallback is returned (as a panic, since this is a
	// programmer error) when PostCallback or ArmTimer receive a nil
	// callback.
	ErrNilCallback = errors.New("engine: nil callback")
	// ErrDuplicateFD signals a programmer error: the fd is already
	// registered.
	ErrDuplicateFD = errors.New("engine: fd already registered")
	// ErrUnknownFD signals a programmer error: the fd was never
	// registered, or was already deleted.
	ErrUnknownFD = errors.New("engine: fd not registered")
	// ErrWrongGoroutine is raised when a loop-thread-only method is
	// called from a goroutine other than the one running the loop.
	ErrWrongGoroutine = errors.New("engine: called off the engine goroutine")
	// ErrStopped is returned by Run when the loop has already been
	// stopped.
	ErrStopped = errors.New("engine: stopped")
)

// Handler is invoked when a monitored fd becomes ready.
type Handler func(events sysiface.Events)

type fdRegistration struct {
	handler Handler
	events  sysiface.Events
	// deleted marks a registration removed mid-batch so a still-buffered
	// ready event for it from the current wait round is skipped, per
	// the ready-event invalidation rule below.
	deleted bool
}

// Engine is the single-threaded event loop. One Engine instance is
// owned by one logical thread: every method other than PostCallback
// and Stop must be called from the goroutine running Run (or, prior to
// Run, from the constructing goroutine).
type Engine struct {
	sys  sysiface.System
	log  sdllog.Logger
	epfd int

	wakeFD int // eventfd: readable whenever the inbox or a pending Stop needs attention

	mu      sync.Mutex
	fds     map[int]*fdRegistration
	timers  timerHeap
	timerFD int
	nextSeq uint64

	inboxMu sync.Mutex
	inbox   []func()

	loopGoroutine atomic.Uint64
	stopped       atomic.Bool
	closeOnce     sync.Once
}

// New constructs an Engine bound to sys. Call Run to start processing.
func New(sys sysiface.System, opts ...Option) (*Engine, error) {
	cfg := resolveOptions(opts)

	epfd, err := sys.EpollCreate()
	if err != nil {
		return nil, fmt.Errorf("engine: create epoll: %w", err)
	}
	wakeFD, err := sys.EventFDCreate()
	if err != nil {
		_ = sys.Close(epfd)
		return nil, fmt.Errorf("engine: create wake fd: %w", err)
	}
	timerFD, err := sys.TimerFDCreate()
	if err != nil {
		_ = sys.Close(wakeFD)
		_ = sys.Close(epfd)
		return nil, fmt.Errorf("engine: create timer fd: %w", err)
	}

	e := &Engine{
		sys:     sys,
		log:     sdllog.OrDisabled(cfg.logger),
		epfd:    epfd,
		wakeFD:  wakeFD,
		timerFD: timerFD,
		fds:     make(map[int]*fdRegistration),
	}
	if err := sys.EpollAdd(epfd, wakeFD, sysiface.Readable); err != nil {
		_ = sys.Close(timerFD)
		_ = sys.Close(wakeFD)
		_ = sys.Close(epfd)
		return nil, fmt.Errorf("engine: register wake fd: %w", err)
	}
	if err := sys.EpollAdd(epfd, timerFD, sysiface.Readable); err != nil {
		_ = sys.Close(timerFD)
		_ = sys.Close(wakeFD)
		_ = sys.Close(epfd)
		return nil, fmt.Errorf("engine: register timer fd: %w", err)
	}
	return e, nil
}

// FD returns the OS-visible fd a sync wrapper can poll externally: it
// becomes readable whenever the engine has work to do.
func (e *Engine) FD() int { return e.wakeFD }

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// assertLoopThread panics (programmer error: only PostCallback is safe
// to call from another thread) if called from any goroutine other than
// the one running Run, once Run has started.
func (e *Engine) assertLoopThread() {
	id := e.loopGoroutine.Load()
	if id == 0 {
		return // not yet running: setup calls from the constructing goroutine are fine
	}
	if getGoroutineID() != id {
		panic(ErrWrongGoroutine)
	}
}

// AddMonitoredFD registers fd for events, invoking handler when ready.
// Duplicate registration is a programmer error and panics.
func (e *Engine) AddMonitoredFD(fd int, events sysiface.Events, handler Handler) {
	e.assertLoopThread()
	if handler == nil {
		panic(ErrNilCallback)
	}
	e.mu.Lock()
	if _, exists := e.fds[fd]; exists {
		e.mu.Unlock()
		panic(ErrDuplicateFD)
	}
	e.fds[fd] = &fdRegistration{handler: handler, events: events}
	e.mu.Unlock()

	if err := e.sys.EpollAdd(e.epfd, fd, events); err != nil {
		e.log.Err().Err(err).Int("fd", fd).Log("engine: epoll add failed")
		panic(err)
	}
}

// ModifyMonitoredFD changes the interest set for fd. An absent fd is a
// programmer error and panics.
func (e *Engine) ModifyMonitoredFD(fd int, events sysiface.Events) {
	e.assertLoopThread()
	e.mu.Lock()
	reg, exists := e.fds[fd]
	if !exists {
		e.mu.Unlock()
		panic(ErrUnknownFD)
	}
	reg.events = events
	e.mu.Unlock()

	if err := e.sys.EpollModify(e.epfd, fd, events); err != nil {
		e.log.Err().Err(err).Int("fd", fd).Log("engine: epoll modify failed")
		panic(err)
	}
}

// DeleteMonitoredFD removes fd. An absent fd is a programmer error and
// panics. Any ready event still buffered for fd from the current wait
// round is invalidated.
func (e *Engine) DeleteMonitoredFD(fd int) {
	e.assertLoopThread()
	e.mu.Lock()
	reg, exists := e.fds[fd]
	if !exists {
		e.mu.Unlock()
		panic(ErrUnknownFD)
	}
	reg.deleted = true
	delete(e.fds, fd)
	e.mu.Unlock()

	if err := e.sys.EpollDelete(e.epfd, fd); err != nil {
		e.log.Err().Err(err).Int("fd", fd).Log("engine: epoll delete failed")
	}
}

// PostCallback schedules cb to run once on the loop goroutine before the
// next wait round. Safe to call from any goroutine — one of the two
// such entry points, with Stop. Posting a nil callback is a programmer
// error and panics.
func (e *Engine) PostCallback(cb func()) {
	if cb == nil {
		panic(ErrNilCallback)
	}
	e.inboxMu.Lock()
	e.inbox = append(e.inbox, cb)
	e.inboxMu.Unlock()

	if err := e.sys.EventFDWrite(e.wakeFD); err != nil {
		e.log.Err().Err(err).Log("engine: wake write failed")
	}
}

// Timer owns one entry in the engine's timer queue. Disarm (or letting
// the entry fire) is the only way it stops; there is no destructor in
// Go, so callers must call Disarm explicitly when abandoning a timer
// before it fires.
type Timer struct {
	eng   *Engine
	entry *timerEntry
}

// NewTimer allocates a Timer handle, initially unarmed.
func (e *Engine) NewTimer() *Timer {
	return &Timer{eng: e}
}

// ArmTimer attaches a one-shot callback at now+duration. Re-arms the OS
// timer object if this becomes the new earliest deadline.
func (e *Engine) ArmTimer(t *Timer, duration time.Duration, cb func()) {
	e.assertLoopThread()
	if cb == nil {
		panic(ErrNilCallback)
	}
	e.disarmLocked(t)

	e.mu.Lock()
	e.nextSeq++
	entry := &timerEntry{
		deadline: e.sys.SteadyNow().Add(duration),
		seq:      e.nextSeq,
		timer:    t,
		cb:       cb,
	}
	t.entry = entry
	heap.Push(&e.timers, entry)
	becameMin := e.timers[0] == entry
	next := e.timers[0].deadline
	e.mu.Unlock()

	if becameMin {
		if err := e.sys.TimerFDSet(e.timerFD, next); err != nil {
			e.log.Err().Err(err).Log("engine: timerfd set failed")
		}
	}
}

// DisarmTimer detaches t's callback, if armed. No callback runs
// afterward.
func (e *Engine) DisarmTimer(t *Timer) {
	e.assertLoopThread()
	e.disarmLocked(t)
}

func (e *Engine) disarmLocked(t *Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.entry == nil || t.entry.index < 0 {
		return
	}
	wasMin := t.entry.index == 0
	heap.Remove(&e.timers, t.entry.index)
	t.entry = nil
	if wasMin {
		if len(e.timers) > 0 {
			_ = e.sys.TimerFDSet(e.timerFD, e.timers[0].deadline)
		} else {
			_ = e.sys.TimerFDSet(e.timerFD, time.Time{})
		}
	}
}

// Disarm is a convenience wrapper equivalent to Engine.DisarmTimer(t).
func (t *Timer) Disarm() {
	if t.eng != nil {
		t.eng.DisarmTimer(t)
	}
}

// runDueTimers pops and executes every timer whose deadline has passed,
// then re-arms (or disarms) the OS timer object to the new minimum.
func (e *Engine) runDueTimers() {
	now := e.sys.SteadyNow()
	for {
		e.mu.Lock()
		if len(e.timers) == 0 || e.timers[0].deadline.After(now) {
			e.mu.Unlock()
			break
		}
		entry := heap.Pop(&e.timers).(*timerEntry)
		if entry.timer != nil {
			entry.timer.entry = nil
		}
		e.mu.Unlock()
		e.safeCall(entry.cb)
	}

	e.mu.Lock()
	if len(e.timers) > 0 {
		next := e.timers[0].deadline
		e.mu.Unlock()
		_ = e.sys.TimerFDSet(e.timerFD, next)
	} else {
		e.mu.Unlock()
		_ = e.sys.TimerFDSet(e.timerFD, time.Time{})
	}
}

func (e *Engine) safeCall(cb func()) {
	if cb == nil {
		return
	}
	// Timer and dispatcher completion callbacks may panic; the loop is
	// not required to catch them — a panicking callback is a programmer
	// error. We still log before letting it propagate so a misbehaving
	// handler doesn't take down the process silently when Run is
	// invoked via "go eng.Run()".
	defer func() {
		if r := recover(); r != nil {
			e.log.Err().Err(fmt.Errorf("%v", r)).Log("engine: callback panicked")
			panic(r)
		}
	}()
	cb()
}

// drainInbox swaps out the whole pending-callback deque and runs it
// FIFO. Callbacks posted by a running callback are not executed in the
// same drain.
func (e *Engine) drainInbox() {
	e.inboxMu.Lock()
	batch := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()

	for _, cb := range batch {
		e.safeCall(cb)
	}
}

// HandleEvents performs a single non-blocking drain: wake/timer fds are
// serviced, due timers run, the inbox drains, and any already-ready
// monitored fds are dispatched. Called by the sync facade after poll
// reports the engine fd ready.
func (e *Engine) HandleEvents() {
	e.assertLoopThread()
	e.poll(0)
}

// Run blocks processing events until Stop is posted.
func (e *Engine) Run() error {
	if e.stopped.Load() {
		return ErrStopped
	}
	if !e.loopGoroutine.CompareAndSwap(0, getGoroutineID()) {
		return errors.New("engine: already running")
	}
	defer e.loopGoroutine.Store(0)

	for !e.stopped.Load() {
		timeout := e.nextTimeout()
		e.poll(timeout)
	}
	return nil
}

// Stop requests the loop to exit before its next wait. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	if err := e.sys.EventFDWrite(e.wakeFD); err != nil {
		e.log.Err().Err(err).Log("engine: stop wake failed")
	}
}

func (e *Engine) nextTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.timers) == 0 {
		return -1
	}
	d := e.timers[0].deadline.Sub(e.sys.SteadyNow())
	if d < 0 {
		d = 0
	}
	return d
}

// poll does one epoll wait round (possibly non-blocking when timeout is
// 0) and dispatches whatever came back, with ready-event invalidation
// for fds deleted mid-batch.
func (e *Engine) poll(timeout time.Duration) {
	results, err := e.sys.EpollWait(e.epfd, timeout)
	if err != nil {
		// Epoll-equivalent failure is fatal.
		panic(fmt.Errorf("engine: epoll wait: %w", err))
	}

	for _, r := range results {
		switch r.FD {
		case e.wakeFD:
			if err := e.sys.EventFDRead(e.wakeFD); err != nil {
				e.log.Err().Err(err).Log("engine: wake read failed")
			}
			e.drainInbox()
		case e.timerFD:
			if err := e.sys.EventFDRead(e.timerFD); err != nil {
				e.log.Err().Err(err).Log("engine: timer read failed")
			}
			e.runDueTimers()
		default:
			e.mu.Lock()
			reg, ok := e.fds[r.FD]
			e.mu.Unlock()
			if !ok || reg.deleted {
				continue // invalidated: deleted during this batch
			}
			e.safeCall(func() { reg.handler(r.Events) })
		}
	}
}

// Close tears down the engine's own fds. It does not delete
// caller-registered fds; callers must DeleteMonitoredFD (and close)
// each of their own fds before calling Close.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if cerr := e.sys.Close(e.timerFD); cerr != nil {
			err = cerr
		}
		if cerr := e.sys.Close(e.wakeFD); cerr != nil {
			err = cerr
		}
		if cerr := e.sys.Close(e.epfd); cerr != nil {
			err = cerr
		}
	})
	return err
}
