package tabular

// reader.go holds the io.Reader wrappers applied to CSV uploads before
// parsing. They work on the stream, so memory stays bounded by the csv
// reader's buffer rather than the file size.

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned once more than the allowed bytes are read.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkipper drops a leading UTF-8 byte order mark, as written by Excel on
// Windows.
type bomSkipper struct {
	r       io.Reader
	checked bool
	head    []byte
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		buf := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(b.r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return 0, err
		}
		b.head = buf[:n]
		if bytes.Equal(b.head, utf8BOM) {
			b.head = nil
		}
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces bytes that are not valid UTF-8 with '?'. A
// multi-byte sequence split across reads is carried to the next read.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if isASCII(data) {
		return n, err
	}

	atEOF := err == io.EOF
	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[i:]) {
				s.pending = append(s.pending, data[i:]...)
				break
			}
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}

	// Everything was carried over; report progress on the next call.
	if w == 0 && err == nil {
		return s.Read(p)
	}
	return w, err
}

func isASCII(data []byte) bool {
	for _, c := range data {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// limitReader fails with ErrFileTooLarge after max bytes. A max of zero
// disables the limit.
type limitReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}

// wrapCSV applies size limit, BOM removal and UTF-8 cleanup, in that order.
func wrapCSV(r io.Reader, maxSize int64) io.Reader {
	limited := &limitReader{r: r, max: maxSize}
	return &utf8Sanitizer{r: &bomSkipper{r: limited}}
}
