package rawhttp

import "bytes"

// lineSplitter turns arbitrarily fragmented reads into complete lines.
// Bytes after the last newline are held back until more data arrives.
type lineSplitter struct {
	pending []byte
}

// Feed appends p and returns every line it completed, without line terminators.
// Returned slices are only valid until the next call.
func (s *lineSplitter) Feed(p []byte) [][]byte {
	s.pending = append(s.pending, p...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, bytes.TrimRight(s.pending[:idx], "\r"))
		s.pending = s.pending[idx+1:]
	}
	if len(s.pending) == 0 {
		s.pending = s.pending[:0]
	}
	return lines
}

// Flush returns whatever is left once the stream has ended.
func (s *lineSplitter) Flush() []byte {
	rest := bytes.TrimRight(s.pending, "\r")
	s.pending = nil
	return rest
}
