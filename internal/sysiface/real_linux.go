//go:build linux

package sysiface

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Real binds System to actual Linux syscalls: epoll for readiness,
// eventfd for cross-thread wakeup and timer expiry notification, and
// timerfd for the single OS timer object the engine re-arms.
//
// Modeled on an epoll-wrapping and eventfd-creation idiom built on
// golang.org/x/sys/unix.
type Real struct{}

func eventsToEpoll(e Events) uint32 {
	var out uint32
	if e&Readable != 0 {
		out |= unix.EPOLLIN
	}
	if e&Writable != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(mask uint32) Events {
	var out Events
	if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		out |= Readable
	}
	if mask&unix.EPOLLOUT != 0 {
		out |= Writable
	}
	return out
}

func (Real) EpollCreate() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func (Real) EpollAdd(epfd, fd int, events Events) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (Real) EpollModify(epfd, fd int, events Events) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (Real) EpollDelete(epfd, fd int) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (Real) EpollWait(epfd int, timeout time.Duration) ([]PollResult, error) {
	var buf [256]unix.EpollEvent
	ms := durationToEpollMillis(timeout)
	n, err := unix.EpollWait(epfd, buf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PollResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, PollResult{FD: int(buf[i].Fd), Events: epollToEvents(buf[i].Events)})
	}
	return out, nil
}

func durationToEpollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d.Milliseconds()
	if d > 0 && ms == 0 {
		return 1
	}
	return int(ms)
}

func (Real) TimerFDCreate() (int, error) {
	return unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
}

func (Real) TimerFDSet(fd int, deadline time.Time) error {
	var spec unix.ItimerSpec
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			d = time.Nanosecond
		}
		spec.Value.Sec = int64(d / time.Second)
		spec.Value.Nsec = int64(d % time.Second)
	}
	return unix.TimerfdSettime(fd, 0, &spec, nil)
}

func (Real) EventFDCreate() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

func (Real) EventFDRead(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	return err
}

func (Real) EventFDWrite(fd int) error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(fd, buf[:])
	return err
}

func (Real) Read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func (Real) Write(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

func (Real) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		// Close failure is fatal: abort with the failing fd in the
		// panic message rather than returning a recoverable error.
		panic(fmt.Errorf("sysiface: close fd %d: %w", fd, err))
	}
	return nil
}

func (Real) Poll(fds []PollEntry, timeout time.Duration) ([]PollResult, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		var ev int16
		if f.Events&Readable != 0 {
			ev |= unix.POLLIN
		}
		if f.Events&Writable != 0 {
			ev |= unix.POLLOUT
		}
		pfds[i] = unix.PollFd{Fd: int32(f.FD), Events: ev}
	}
	ms := durationToEpollMillis(timeout)
	for {
		_, err := unix.Poll(pfds, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		break
	}
	var out []PollResult
	for i, p := range pfds {
		if p.Revents == 0 {
			continue
		}
		var e Events
		if p.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			e |= Readable
		}
		if p.Revents&unix.POLLOUT != 0 {
			e |= Writable
		}
		out = append(out, PollResult{FD: fds[i].FD, Events: e})
	}
	return out, nil
}

func (Real) SteadyNow() time.Time {
	return time.Now()
}

func (Real) Getenv(name string) (string, bool) {
	return unixGetenv(name)
}
