package tdcsync

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// TraceRecord is one sync-loop cycle. CBOR uses integer keys.
type TraceRecord struct {
	Session  string    `cbor:"1,keyasint"`
	Seq      uint64    `cbor:"2,keyasint"`
	Time     time.Time `cbor:"3,keyasint"`
	RawNs    int64     `cbor:"4,keyasint"`
	OffsetNs int64     `cbor:"5,keyasint"`
	AdjPPB   float64   `cbor:"6,keyasint"`
	State    string    `cbor:"7,keyasint"`
	Mode     string    `cbor:"8,keyasint"`
	Action   string    `cbor:"9,keyasint,omitempty"`
	Error    string    `cbor:"10,keyasint,omitempty"`
}

var (
	traceEnc cbor.EncMode
	traceDec cbor.DecMode
)

func init() {
	var err error
	traceEnc, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("tdcsync: trace encoder: %v", err))
	}
	traceDec, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyQuiet}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("tdcsync: trace decoder: %v", err))
	}
}

// TraceWriter appends TraceRecords to a stream, stamping each with a
// per-writer session id and sequence number. Safe for concurrent use.
type TraceWriter struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	session string
	seq     uint64
}

func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{enc: traceEnc.NewEncoder(w), session: uuid.NewString()}
}

func (t *TraceWriter) Session() string { return t.session }

func (t *TraceWriter) Write(rec TraceRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	rec.Session, rec.Seq = t.session, t.seq
	return t.enc.Encode(rec)
}

// ReadTrace decodes every record in r.
func ReadTrace(r io.Reader) ([]TraceRecord, error) {
	dec := traceDec.NewDecoder(r)
	var out []TraceRecord
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}
