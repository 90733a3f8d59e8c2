package core

import (
	"io"
	"sync"
	"sync/atomic"
)

// DebugWriter is a function type for writing diagnostic lines
type DebugWriter func(string)

// WriterDebug returns a DebugWriter that writes each line to w
func WriterDebug(w io.Writer) DebugWriter {
	var mu sync.Mutex
	return func(s string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = io.WriteString(w, s+"\n")
	}
}

// Diagnostics is the human-readable side channel. It carries unmodeled
// opcodes and byte dumps only, never protocol semantics. All methods are
// safe on a nil receiver.
type Diagnostics struct {
	prefix  string
	writer  DebugWriter
	ch      chan string
	done    chan struct{}
	once    sync.Once
	dropped uint32 // atomic
}

// NewDiagnostics creates a side channel that tags every line with prefix
func NewDiagnostics(prefix string, writer DebugWriter) *Diagnostics {
	return &Diagnostics{prefix: prefix, writer: writer}
}

// StartAsync starts the output worker. Until it is started lines are
// written synchronously; afterwards they are queued and dropped when the
// queue is full, so the bus side never waits on a slow sink.
func (d *Diagnostics) StartAsync(depth int) {
	if d == nil || d.ch != nil {
		return
	}
	d.ch = make(chan string, depth)
	d.done = make(chan struct{})
	go d.worker()
}

// worker runs in background, drains the queue
func (d *Diagnostics) worker() {
	defer close(d.done)
	for msg := range d.ch {
		if d.writer != nil {
			d.writer(msg)
		}
	}
}

// Close flushes queued lines and stops the worker
func (d *Diagnostics) Close() {
	if d == nil || d.ch == nil {
		return
	}
	d.once.Do(func() {
		close(d.ch)
		<-d.done
	})
}

// Println writes one diagnostic line
func (d *Diagnostics) Println(msg string) {
	if d == nil || d.writer == nil {
		return
	}
	if d.prefix != "" {
		msg = "[" + d.prefix + "] " + msg
	}
	if d.ch == nil {
		d.writer(msg)
		return
	}
	select {
	case d.ch <- msg:
	default:
		// Queue full, drop message
		atomic.AddUint32(&d.dropped, 1)
	}
}

// Dump writes a labelled hex dump of data
func (d *Diagnostics) Dump(label string, data []byte) {
	if d == nil {
		return
	}
	d.Println(label + " (" + itoa(len(data)) + "): " + hexBytes(data))
}

// UnknownOpcode reports a command with no dispatch entry
func (d *Diagnostics) UnknownOpcode(op Opcode) {
	d.Println("unknown opcode " + op.String())
}

// Dropped returns the number of lines lost to a full queue
func (d *Diagnostics) Dropped() uint32 {
	if d == nil {
		return 0
	}
	return atomic.LoadUint32(&d.dropped)
}
