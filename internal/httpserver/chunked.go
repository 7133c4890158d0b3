package httpserver

import (
	"errors"
	"strconv"
)

// ErrChunkedSyntax is returned by the decoder on malformed chunk framing.
var ErrChunkedSyntax = errors.New("httpserver: malformed chunked encoding")

// chunkedState is the decoder's state machine, spec.md §4.2: "a streaming
// decoder with states {DATA, CR1, LF1, SIZE, LF2}."
type chunkedState int

const (
	stateSize chunkedState = iota
	stateSizeCR
	stateSizeExt
	stateData
	stateDataCR
	stateDataLF
	stateTrailerCR
	stateTrailerLF
	stateDone
)

// ChunkedDecoder decodes a Transfer-Encoding: chunked byte stream
// incrementally. Feed raw bytes to Decode, which appends the data bytes
// found in that call to dst; decoding is not in place, the input buffer
// is left unchanged. Done reports whether the terminating 0-length chunk
// has been fully consumed.
type ChunkedDecoder struct {
	state      chunkedState
	sizeBuf    []byte
	remaining  int64
	FinalChunk bool
}

// NewChunkedDecoder creates a fresh decoder.
func NewChunkedDecoder() *ChunkedDecoder {
	return &ChunkedDecoder{}
}

// Decode consumes in and appends decoded data bytes to dst, returning the
// extended slice. monitorOnly mirrors the original's eponymous flag
// (spec.md §9 open question): when true, Decode still walks the full
// state machine to report completion/erroring but does not append bytes
// to dst, since the caller only wants to know when the body is fully
// received without retaining a second copy (used when content is already
// being streamed elsewhere).
func (d *ChunkedDecoder) Decode(dst, in []byte, monitorOnly bool) ([]byte, error) {
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch d.state {
		case stateSize:
			switch {
			case isHex(c):
				d.sizeBuf = append(d.sizeBuf, c)
			case c == '\r':
				d.state = stateSizeCR
			case c == '\n':
				if err := d.finishSizeLine(); err != nil {
					return dst, err
				}
			case c == ';':
				// chunk-extension: ignore until CR
				d.state = stateSizeExt
			default:
				return dst, ErrChunkedSyntax
			}
		case stateSizeExt:
			switch c {
			case '\r':
				d.state = stateSizeCR
			case '\n':
				if err := d.finishSizeLine(); err != nil {
					return dst, err
				}
			}
		case stateSizeCR:
			if c != '\n' {
				// tolerate repeated CRs before LF, but any other byte
				// after CR is an error
				if c != '\r' {
					return dst, ErrChunkedSyntax
				}
				continue
			}
			if err := d.finishSizeLine(); err != nil {
				return dst, err
			}
		case stateData:
			n := int64(len(in) - i)
			if n > d.remaining {
				n = d.remaining
			}
			if !monitorOnly {
				dst = append(dst, in[i:i+int(n)]...)
			}
			i += int(n) - 1
			d.remaining -= n
			if d.remaining == 0 {
				d.state = stateDataCR
			}
		case stateDataCR:
			if c != '\r' {
				return dst, ErrChunkedSyntax
			}
			d.state = stateDataLF
		case stateDataLF:
			if c != '\n' {
				return dst, ErrChunkedSyntax
			}
			d.state = stateSize
		case stateTrailerCR:
			if c == '\n' {
				d.state = stateDone
				d.FinalChunk = true
			}
		case stateDone:
			// extra bytes after terminator are ignored
		}
	}
	return dst, nil
}

func (d *ChunkedDecoder) finishSizeLine() error {
	size, err := strconv.ParseInt(string(d.sizeBuf), 16, 64)
	if err != nil {
		return ErrChunkedSyntax
	}
	d.sizeBuf = d.sizeBuf[:0]
	if size == 0 {
		d.state = stateTrailerCR
		return nil
	}
	d.remaining = size
	d.state = stateData
	return nil
}

// Done reports whether the terminating 0-length chunk has been seen.
func (d *ChunkedDecoder) Done() bool { return d.state == stateDone }

// ChunkedCoder encodes an outbound body as chunked transfer coding, per
// spec.md §4.2 step 1: prepend "size\r\n", append "\r\n", and emit the
// terminating "0\r\n\r\n" on EOF.
type ChunkedCoder struct{}

// Encode wraps one chunk of data (may be zero-length, but then eof must
// be true) in its size-prefixed framing, appending to dst.
func (ChunkedCoder) Encode(dst, data []byte, eof bool) []byte {
	if len(data) > 0 {
		dst = append(dst, []byte(strconv.FormatInt(int64(len(data)), 16))...)
		dst = append(dst, '\r', '\n')
		dst = append(dst, data...)
		dst = append(dst, '\r', '\n')
	}
	if eof {
		dst = append(dst, '0', '\r', '\n', '\r', '\n')
	}
	return dst
}
