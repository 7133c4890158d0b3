package stream

import "fmt"

// Node is one element of a composite response: a byte buffer, a file
// window, or a subrequest's content_out istream (spec.md §4.5 "Composite
// responses: an ordered list of nodes {byte buffer | fd window |
// subrequest}").
type Node struct {
	// Bytes is set for a literal in-memory fragment.
	Bytes []byte
	// File is set for a file-region fragment.
	FileFD          int
	FileOffset      int64
	FileEnd         int64
	IsFile          bool
	// Source is set for a subrequest or any other istream-producing
	// node; mutually exclusive with Bytes/IsFile.
	Source Istream
}

// Streamer multiplexes N nodes into a single Ostream in strict order:
// each node's EOF advances to the next, and the final node's EOF
// finalises the whole streamer as EOF (spec.md §4.5 "merged into a
// single ostream by the streamer, which multiplexes in strict order").
// It implements Istream so it can be Connect-ed to a server protocol's
// response content_out the same way any other istream is.
type Streamer struct {
	IstreamBase

	nodes   []Node
	idx     int
	bytePos int

	// errored records a subrequest failure so Read can report it instead
	// of silently truncating (spec.md §4.5 failure semantics).
	errored   bool
	errPrefix bool // failed before any streaming started (small placeholder)
}

// NewStreamer creates an empty Streamer; nodes are appended with Add
// before it is connected to an ostream.
func NewStreamer() *Streamer {
	return &Streamer{}
}

// Add appends a node to the end of the sequence. Nodes must be added
// before streaming begins; spec.md does not allow a streamer to grow once
// its ostream has started pulling (the handler composes the full node
// list up front).
func (s *Streamer) Add(n Node) {
	s.nodes = append(s.nodes, n)
}

// Fail marks the streamer as failed. If called before any bytes have been
// delivered, Read returns the SSI error placeholder instead of real
// content; if called after streaming started, Read returns an error so
// the caller (internal/httpserver) can abort the connection, per spec.md
// §4.5: "Failure of a subrequest after streaming has started ... closes
// the parent connection; failure before yields a small
// <!--[ssi error]--> placeholder body."
func (s *Streamer) Fail() {
	s.errored = true
	s.errPrefix = s.idx == 0 && s.bytePos == 0
}

// ssiErrorPlaceholder is the literal fallback body spec.md names.
var ssiErrorPlaceholder = []byte("<!--[ssi error]-->")

// Read implements Istream by pulling from the current node, advancing to
// the next node on that node's EOF, and reporting overall EOF once the
// last node is drained.
func (s *Streamer) Read(p []byte) (int, EOFFlag, error) {
	if s.errored {
		if s.errPrefix {
			n := copy(p, ssiErrorPlaceholder)
			s.errPrefix = false
			return n, EOF, nil
		}
		return 0, EOF, fmt.Errorf("streamer: subrequest failed mid-stream")
	}

	for s.idx < len(s.nodes) {
		n := &s.nodes[s.idx]
		switch {
		case n.Source != nil:
			read, eof, err := n.Source.Read(p)
			if err != nil {
				return read, NoEOF, err
			}
			if eof == EOF {
				s.idx++
				s.bytePos = 0
			}
			if read > 0 || eof != EOF {
				return read, s.overallEOF(), nil
			}
			// empty + not final node: fall through to next node
		case n.IsFile:
			// File nodes are handed to the ostream via a dedicated
			// Sendfile path (see (*Streamer).File); Read should not be
			// called while the current node is file-backed.
			s.idx++
			s.bytePos = 0
		default:
			remaining := n.Bytes[s.bytePos:]
			copied := copy(p, remaining)
			s.bytePos += copied
			if s.bytePos >= len(n.Bytes) {
				s.idx++
				s.bytePos = 0
			}
			return copied, s.overallEOF(), nil
		}
	}
	return 0, EOF, nil
}

func (s *Streamer) overallEOF() EOFFlag {
	if s.idx >= len(s.nodes) {
		return EOF
	}
	return NoEOF
}

// File reports the current node's file descriptor window, if the node at
// the current index is file-backed, so the ostream can prefer sendfile.
func (s *Streamer) File() (fd int, offset, end int64, ok bool) {
	if s.idx >= len(s.nodes) {
		return 0, 0, 0, false
	}
	n := s.nodes[s.idx]
	if !n.IsFile {
		return 0, 0, 0, false
	}
	return n.FileFD, n.FileOffset, n.FileEnd, true
}

// Done reports whether every node has been fully consumed.
func (s *Streamer) Done() bool {
	return s.idx >= len(s.nodes)
}
