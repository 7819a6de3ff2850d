package log

import (
	"bytes"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileExtension is the conventional suffix of capture files.
const FileExtension = ".ucap"

// FileLogger appends capture events to a file, one CBOR record per event.
// Every record reaches the file in a single write, so two processes
// capturing into the same file never interleave partial records.
type FileLogger struct {
	mu      sync.Mutex
	f       *os.File
	buf     bytes.Buffer
	enc     *cbor.Encoder
	dropped uint64
	err     error
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{f: f}
	l.enc = codec.enc.NewEncoder(&l.buf)
	return l, nil
}

// Log appends event. A failed write does not reach the caller; it is
// counted and reported by Dropped. Events logged after Close are ignored.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return
	}
	l.buf.Reset()
	err := l.enc.Encode(event)
	if err == nil {
		_, err = l.f.Write(l.buf.Bytes())
	}
	if err != nil {
		l.dropped++
		if l.err == nil {
			l.err = err
		}
	}
}

// Dropped returns the number of events that could not be written and the
// first error seen.
func (l *FileLogger) Dropped() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped, l.err
}

// Close closes the file. Closing twice is a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
