package handler

import "strings"

// EncodeCacheKeyPath produces an on-disk path for a cache key per spec.md
// §6: "ASCII alnum, '.', '-', '_', '/' pass through (leading '.' in a
// segment is escaped as $2E); other bytes encoded as $HH; every 230-char
// run in a path segment is split by inserting '/' (ext3 filename limit)."
func EncodeCacheKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = encodeSegment(seg)
	}
	return strings.Join(segments, "/")
}

const maxSegmentRun = 230

func encodeSegment(seg string) string {
	if seg == "" {
		return seg
	}
	var b strings.Builder
	run := 0
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		var piece string
		if i == 0 && c == '.' {
			piece = "$2E"
		} else if isPassthrough(c) {
			piece = string(c)
		} else {
			piece = encodeByte(c)
		}
		if run+len(piece) > maxSegmentRun {
			b.WriteByte('/')
			run = 0
		}
		b.WriteString(piece)
		run += len(piece)
	}
	return b.String()
}

func isPassthrough(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '-' || c == '_':
		return true
	}
	return false
}

const hexDigits = "0123456789ABCDEF"

func encodeByte(c byte) string {
	return "$" + string(hexDigits[c>>4]) + string(hexDigits[c&0xf])
}
