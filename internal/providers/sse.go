package providers

import (
	"bytes"
	"io"
)

// sseReader incrementally splits a server-sent-event body into events.
// Events end at a blank line; both \n\n and \r\n\r\n separators occur in
// the wild.
type sseReader struct {
	r      io.Reader
	buffer []byte
	eof    bool
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: r, buffer: make([]byte, 0, 4096)}
}

// nextSSEEvent cuts one complete event off buf. With flush set, a trailing
// partial event is returned as the final one.
func nextSSEEvent(buf []byte, flush bool) ([]byte, []byte, bool) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return buf[:idx], buf[idx+4:], true
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return buf[:idx], buf[idx+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

// Next returns the data payload of the next event, or io.EOF. Multiple
// data: lines within one event are newline-joined per the SSE spec.
// Events without a data line are skipped.
func (s *sseReader) Next() ([]byte, error) {
	for {
		if event, rest, ok := nextSSEEvent(s.buffer, s.eof); ok {
			s.buffer = rest
			if data := eventData(event); len(data) > 0 {
				return data, nil
			}
			continue
		}
		if s.eof {
			return nil, io.EOF
		}

		chunk := make([]byte, 4096)
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.buffer = append(s.buffer, chunk[:n]...)
		}
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return nil, err
		}
	}
}

func eventData(event []byte) []byte {
	var dataLines [][]byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 {
			continue
		}
		dataLines = append(dataLines, payload)
	}
	if len(dataLines) == 0 {
		return nil
	}
	return bytes.Join(dataLines, []byte("\n"))
}
