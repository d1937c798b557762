package stream

import (
	"bytes"
	"io"
)

// Scanner reassembles SSE data frames from a raw byte stream. Network reads
// may split a frame anywhere, including inside a base64 audio payload, so
// only fully newline-terminated lines are processed; a trailing partial
// fragment stays buffered until its remaining bytes arrive.
type Scanner struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r, chunk: make([]byte, 4096)}
}

// Next returns the payload of the next complete data frame, or io.EOF once
// the stream is exhausted. Non-data lines (comments, other SSE fields) and
// blank separators are skipped.
func (s *Scanner) Next() ([]byte, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := bytes.TrimSuffix(s.buf[:i], []byte("\r"))
			s.buf = s.buf[i+1:]
			payload, ok := cutDataPrefix(line)
			if !ok {
				continue
			}
			out := make([]byte, len(payload))
			copy(out, payload)
			return out, nil
		}

		if s.err != nil {
			// An unterminated trailing fragment is an incomplete frame;
			// it is dropped rather than parsed.
			return nil, s.err
		}

		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			s.err = err
		}
	}
}

func cutDataPrefix(line []byte) ([]byte, bool) {
	rest, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, false
	}
	if len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return nil, false
	}
	return rest, true
}
