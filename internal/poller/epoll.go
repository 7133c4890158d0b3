//go:build linux

package poller

import "golang.org/x/sys/unix"

// epollPoller is the Linux epoll implementation. It registers every fd
// edge-triggered (EPOLLET) for read, write, RDHUP, HUP and error interest,
// per spec.md §4.1's register_fd_source contract: the caller sees the loop
// translate readiness into istream/ostream flags and data_error publishes,
// not raw epoll bits.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates the Linux epoll-backed Poller.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLET,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	// Linux ignores the event argument on EPOLL_CTL_DEL but some kernels
	// prior to 2.6.9 required a non-nil pointer; pass one for safety.
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (p *epollPoller) Wait(timeoutMillis int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := p.events[i].Events
		var mask EventMask
		if raw&unix.EPOLLIN != 0 {
			mask |= Readable
		}
		if raw&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		if raw&unix.EPOLLRDHUP != 0 {
			mask |= ReadClosed
		}
		if raw&unix.EPOLLHUP != 0 {
			mask |= HangUp
		}
		if raw&unix.EPOLLERR != 0 {
			mask |= Error
		}
		out = append(out, Event{Fd: int(p.events[i].Fd), Mask: mask})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

// SetNonblock puts fd into non-blocking mode, required before registering
// it with epoll under edge-triggered interest.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
