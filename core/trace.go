package core

import "time"

// FrameRecord is one frame exchanged during a session
type FrameRecord struct {
	Session string    `cbor:"1,keyasint,omitempty"`
	Time    time.Time `cbor:"2,keyasint"`
	Role    string    `cbor:"3,keyasint"`
	Kind    string    `cbor:"4,keyasint"`
	Name    string    `cbor:"5,keyasint,omitempty"`
	Opcode  []byte    `cbor:"6,keyasint,omitempty"`
	Payload []byte    `cbor:"7,keyasint,omitempty"`
	Ack     byte      `cbor:"8,keyasint"`
	OK      bool      `cbor:"9,keyasint"`
}

// Tracer receives every frame of a session. A nil Tracer is valid.
type Tracer interface {
	Record(rec FrameRecord) error
}
