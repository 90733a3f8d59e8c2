// Package trace records session frames as a CBOR sequence and reads them back
package trace

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"lensbus/core"
)

// Recorder appends frame records to a writer. It implements core.Tracer and
// is safe for concurrent use by a body and a lens session.
type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	n   int
}

var _ core.Tracer = (*Recorder)(nil)

// encMode keeps sub-second timestamps
var encMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

// NewRecorder creates a recorder writing to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// Record encodes one frame
func (r *Recorder) Record(rec core.FrameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode frame record: %w", err)
	}
	r.n++
	return nil
}

// Count returns the number of records written
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Reader decodes frame records written by a Recorder
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the trace
func (r *Reader) Next() (core.FrameRecord, error) {
	var rec core.FrameRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return rec, io.EOF
		}
		return rec, fmt.Errorf("failed to decode frame record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every record in the trace
func ReadAll(r io.Reader) ([]core.FrameRecord, error) {
	rd := NewReader(r)
	var recs []core.FrameRecord
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// FormatRecord formats a record into a human-readable line
func FormatRecord(rec core.FrameRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-4s %-8s", rec.Time.Format("15:04:05.000000"), rec.Role, strings.ToUpper(rec.Kind))
	if rec.Name != "" {
		fmt.Fprintf(&sb, " %s", rec.Name)
	}
	if len(rec.Opcode) > 0 {
		fmt.Fprintf(&sb, " op=% X", rec.Opcode)
	}
	if len(rec.Payload) > 0 {
		fmt.Fprintf(&sb, " len=%d data=% X", len(rec.Payload), rec.Payload)
	}
	fmt.Fprintf(&sb, " ack=0x%02X", rec.Ack)
	if !rec.OK {
		sb.WriteString(" MISMATCH")
	}
	return sb.String()
}

// Dump writes every record of a trace to w, one per line, and returns
// how many were written
func Dump(w io.Writer, r io.Reader) (int, error) {
	rd := NewReader(r)
	n := 0
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := fmt.Fprintln(w, FormatRecord(rec)); err != nil {
			return n, err
		}
		n++
	}
}
