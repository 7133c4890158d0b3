// Package stream implements the Istream/Ostream pairing primitive and the
// publisher/subscriber bus spec.md §3–§4.1 describe: "A Stream pair is
// symmetric: a.pair == b iff b.pair == a. A transfer event is scheduled
// exactly when both endpoints are ready and no transfer event is already
// queued for that istream."
//
// Each side keeps a direct interface reference to its peer (Pair), not a
// typed handle into a stream table; eventloop.Loop.ConnectStreams pairs
// two streams through Connect and schedules the transfer.
package stream

// WriteFlags are passed through from the event loop to an Ostream's Write,
// matching spec.md §4.1's "ostream.write(ptr, size, flags)".
type WriteFlags uint8

const (
	// FlagMore indicates more data will follow in this response/request;
	// the loop uses it to decide whether to keep TCP_CORK engaged.
	FlagMore WriteFlags = 1 << iota
)

// EOFFlag is set by an Istream on its last non-empty read, per spec.md:
// "EOF is signalled by the istream setting NXEF_EOF on its last
// non-empty read."
type EOFFlag uint8

const (
	NoEOF EOFFlag = iota
	EOF
)

// Istream is the read half of a stream pair: a source of bytes or file
// regions for a paired Ostream to pull from.
type Istream interface {
	// Ready reports whether the istream currently has data (or EOF) to
	// offer without blocking.
	Ready() bool
	// SetReady flips the ready flag; called by the producer (socket
	// read completion, buffer fill, upstream response) and by the loop
	// when it observes EAGAIN-style backpressure clear.
	SetReady(bool)
	// Read offers up to len(p) bytes of memory data. eof is EOF when
	// this is the last non-empty read (or p is empty and no more data
	// will ever arrive).
	Read(p []byte) (n int, eof EOFFlag, err error)
	// File reports a file-backed source, if any, so the ostream may
	// prefer write(2)/mmap-window copy/sendfile depending on size, per
	// spec.md §4.2 "Content sources". ok is false for memory istreams.
	File() (fd int, offset, end int64, ok bool)
	// Pair returns the currently connected Ostream, or nil.
	Pair() Ostream
	setPair(Ostream)
}

// Ostream is the write half of a stream pair.
type Ostream interface {
	Ready() bool
	SetReady(bool)
	// Write consumes up to len(p) bytes, returning how many it
	// accepted. A short write (n < len(p)) means the ostream became
	// not-ready (EAGAIN, backpressure).
	Write(p []byte, flags WriteFlags) (n int, err error)
	// Sendfile consumes up to count bytes directly from a file
	// descriptor window, for the zero-copy content-source path.
	Sendfile(fd int, offset int64, count int64) (n int64, err error)
	Pair() Istream
	setPair(Istream)
}

// IstreamBase and OstreamBase provide the ready-flag and pair bookkeeping shared by every
// concrete istream/ostream implementation (buffers, sockets, protocol
// stages); embed it and implement only Read/Write/File/Sendfile.
type IstreamBase struct {
	ready bool
	pair  Ostream
}

func (b *IstreamBase) Ready() bool       { return b.ready }
func (b *IstreamBase) SetReady(r bool)   { b.ready = r }
func (b *IstreamBase) Pair() Ostream     { return b.pair }
func (b *IstreamBase) setPair(o Ostream) { b.pair = o }

type OstreamBase struct {
	ready bool
	pair  Istream
}

func (b *OstreamBase) Ready() bool       { return b.ready }
func (b *OstreamBase) SetReady(r bool)   { b.ready = r }
func (b *OstreamBase) Pair() Istream     { return b.pair }
func (b *OstreamBase) setPair(i Istream) { b.pair = i }

// Connect sets is.pair = os and os.pair = is, establishing the symmetric
// invariant spec.md §3 requires. It does not itself schedule a transfer;
// the caller (eventloop.Loop.ConnectStreams) is responsible for that,
// since only the loop knows whether a transfer event is already queued.
func Connect(is Istream, os Ostream) {
	is.setPair(os)
	os.setPair(is)
}

// Disconnect breaks a stream pair, e.g. when a response finishes and its
// content_out istream is retired.
func Disconnect(is Istream, os Ostream) {
	if is != nil && is.Pair() == os {
		is.setPair(nil)
	}
	if os != nil && os.Pair() == is {
		os.setPair(nil)
	}
}
