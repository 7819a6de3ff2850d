package log

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// captureCodec pairs the CBOR modes used to write and read capture records.
// Map keys are sorted canonically, so equal events encode to equal bytes.
type captureCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var codec = mustCaptureCodec()

func mustCaptureCodec() captureCodec {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encode mode: %v", err))
	}

	// Older tools may have written duplicate keys; the last one wins.
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decode mode: %v", err))
	}
	return captureCodec{enc: enc, dec: dec}
}

// EncodeEvent returns the capture record for event.
func EncodeEvent(event Event) ([]byte, error) {
	return codec.enc.Marshal(event)
}

// DecodeEvent parses exactly one capture record.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	err := codec.dec.Unmarshal(data, &e)
	return e, err
}
