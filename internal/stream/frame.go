package stream

import (
	"bufio"
	"io"
	"strings"
)

const (
	// maxLineSize bounds a single stream line; anything larger indicates a
	// broken upstream rather than a legitimate event.
	maxLineSize = 1024 * 1024
)

// FrameScanner reads a server-push byte stream and yields one payload per
// frame. Frames are separated by a blank line; within a frame every
// "data:"-prefixed line contributes to the payload, joined by newlines.
// Other SSE fields (event:, id:, retry:, comments) are ignored. A line
// over maxLineSize poisons its frame: the scanner drains the line,
// discards the frame at the next blank line, and keeps reading.
type FrameScanner struct {
	reader   *bufio.Reader
	data     []string
	oversize bool
}

// NewFrameScanner wraps a stream body.
func NewFrameScanner(r io.Reader) *FrameScanner {
	return &FrameScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the payload of the next complete frame. It returns io.EOF
// when the stream ends (a partial frame at end of stream is discarded) and
// the underlying read error on transport failure. Frames with no data
// lines are skipped.
func (f *FrameScanner) Next() (string, error) {
	for {
		line, tooLong, err := f.readLine()
		if err != nil {
			f.data = f.data[:0]
			return "", err
		}
		if tooLong {
			f.oversize = true
			continue
		}

		if strings.TrimSpace(line) == "" {
			if f.oversize {
				f.oversize = false
				f.data = f.data[:0]
				continue
			}
			if len(f.data) == 0 {
				continue
			}
			payload := strings.Join(f.data, "\n")
			f.data = f.data[:0]
			return payload, nil
		}

		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			f.data = append(f.data, strings.TrimPrefix(rest, " "))
		}
	}
}

// readLine assembles one full line, draining past maxLineSize instead of
// failing. tooLong reports that the line was discarded as oversize.
func (f *FrameScanner) readLine() (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := f.reader.ReadLine()
		if err != nil {
			return "", false, err
		}
		if tooLong {
			if !isPrefix {
				return "", true, nil
			}
			continue
		}
		buf = append(buf, chunk...)
		if len(buf) > maxLineSize {
			tooLong = true
			buf = nil
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}
