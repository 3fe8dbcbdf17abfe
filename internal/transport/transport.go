// Package transport frames JSON-RPC messages on a byte stream using a
// Content-Length header block.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Framing errors. After returning one, ReadMessage resynchronizes at the
// next header separator, so the caller can log and keep reading.
var (
	ErrMessageTooLarge = errors.New("transport: message too large")
	ErrMissingLength   = errors.New("transport: header without Content-Length")
	ErrHeaderTooLarge  = errors.New("transport: header block too large")
)

const (
	// DefaultMaxMessage caps a single body.
	DefaultMaxMessage = 1 << 20
	// MaxHeaderBytes caps a header block before its separator is found.
	MaxHeaderBytes = 8 << 10

	lengthField = "content-length"
)

var separator = []byte("\r\n\r\n")

// Reader reads framed messages. It is not safe for concurrent use.
type Reader struct {
	br      *bufio.Reader
	maxBody int
	header  []byte
	// resync is set after a rejected frame. Until the next separator the
	// header buffer slides instead of overflowing.
	resync bool
}

// NewReader returns a Reader over r. maxBody <= 0 selects DefaultMaxMessage.
func NewReader(r io.Reader, maxBody int) *Reader {
	if maxBody <= 0 {
		maxBody = DefaultMaxMessage
	}
	return &Reader{br: bufio.NewReaderSize(r, 64<<10), maxBody: maxBody}
}

// ReadMessage returns the next body. All offsets are byte offsets, so a
// multi-byte rune split across reads is reassembled intact. io.EOF is
// returned once the stream ends; a partial trailing frame is dropped.
func (r *Reader) ReadMessage() ([]byte, error) {
	header, err := r.readHeader()
	if err != nil {
		return nil, err
	}

	n, ok := contentLength(header)
	if !ok {
		return nil, ErrMissingLength
	}
	if n > r.maxBody {
		// The declared length is not trusted. The body is left in place and
		// scanned past while looking for the next separator.
		r.resync = true
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, n, r.maxBody)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, eof(err)
	}
	return body, nil
}

// readHeader accumulates bytes up to and excluding the separator. While
// resyncing, only the newest MaxHeaderBytes are kept, so the skipped body
// of a rejected frame never counts as an oversized header.
func (r *Reader) readHeader() (string, error) {
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return "", eof(err)
		}
		r.header = append(r.header, b)
		if bytes.HasSuffix(r.header, separator) {
			h := string(r.header[:len(r.header)-len(separator)])
			r.header = r.header[:0]
			r.resync = false
			return h, nil
		}
		if len(r.header) <= MaxHeaderBytes {
			continue
		}
		if r.resync {
			if len(r.header) >= 2*MaxHeaderBytes {
				n := copy(r.header, r.header[len(r.header)-MaxHeaderBytes:])
				r.header = r.header[:n]
			}
			continue
		}
		// Keep a possible partial separator.
		keep := len(separator) - 1
		copy(r.header, r.header[len(r.header)-keep:])
		r.header = r.header[:keep]
		r.resync = true
		return "", ErrHeaderTooLarge
	}
}

// contentLength finds the last Content-Length field in a header block. A
// field may be preceded on its line by leftovers of a skipped body.
func contentLength(header string) (int, bool) {
	n, found := 0, false
	for _, line := range strings.Split(header, "\r\n") {
		value, ok := lengthValue(line)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || v < 0 {
			continue
		}
		n, found = v, true
	}
	return n, found
}

// lengthValue returns the text after the rightmost "Content-Length:" in
// line, matching the name without regard to ASCII case.
func lengthValue(line string) (string, bool) {
	for i := len(line) - len(lengthField); i >= 0; i-- {
		if !strings.EqualFold(line[i:i+len(lengthField)], lengthField) {
			continue
		}
		rest := strings.TrimLeft(line[i+len(lengthField):], " \t")
		if value, ok := strings.CutPrefix(rest, ":"); ok {
			return value, true
		}
	}
	return "", false
}

func eof(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// Writer writes framed messages. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteMessage writes one frame and flushes it.
func (w *Writer) WriteMessage(body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.bw, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := w.bw.Write(body); err != nil {
		return fmt.Errorf("transport: write body: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("transport: flush: %w", err)
	}
	return nil
}
