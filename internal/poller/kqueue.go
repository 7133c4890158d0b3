//go:build darwin || freebsd || netbsd || openbsd

package poller

import "golang.org/x/sys/unix"

// kqueuePoller is the BSD/macOS kqueue implementation, registering both
// EVFILT_READ and EVFILT_WRITE per fd so the event loop can detect
// writability the way it does on epoll (EPOLLOUT).
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates the kqueue-backed Poller.
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(p.kqfd, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMillis int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMillis / 1000),
			Nsec: int64(timeoutMillis%1000) * 1_000_000,
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		e, ok := byFd[fd]
		if !ok {
			e = &Event{Fd: fd}
			byFd[fd] = e
			order = append(order, fd)
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e.Mask |= Readable
			if ev.Flags&unix.EV_EOF != 0 {
				e.Mask |= ReadClosed
			}
		case unix.EVFILT_WRITE:
			e.Mask |= Writable
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			e.Mask |= Error
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFd[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}

// SetNonblock puts fd into non-blocking mode.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
