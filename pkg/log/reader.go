package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncatedCapture is returned by Reader.Next when the file ends inside a
// record, which is what a writer killed mid-write leaves behind. Every
// record before it was returned intact.
var ErrTruncatedCapture = errors.New("capture ends inside a record")

// Filter selects capture events. A zero field matches everything.
type Filter struct {
	ConnectionID string
	DeviceID     string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether event passes every set field of f.
func (f *Filter) Matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && f.ConnectionID != event.ConnectionID,
		f.DeviceID != "" && f.DeviceID != event.DeviceID,
		f.Direction != nil && *f.Direction != event.Direction,
		f.Layer != nil && *f.Layer != event.Layer,
		f.Category != nil && *f.Category != event.Category,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events out of a capture file without loading it whole.
type Reader struct {
	f       *os.File
	dec     *cbor.Decoder
	filter  Filter
	records int
}

// NewReader opens a capture file for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file for reading the events that
// filter matches.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, dec: codec.dec.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at a clean end of file.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		err := r.dec.Decode(&e)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, fmt.Errorf("%w after %d records", ErrTruncatedCapture, r.records)
		case err != nil:
			return Event{}, err
		}
		r.records++
		if r.filter.Matches(e) {
			return e, nil
		}
	}
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
