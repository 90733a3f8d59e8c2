package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lensbus/protocol"
)

// ErrUnknownOpcode is returned by Dispatch for opcodes with no registered command
var ErrUnknownOpcode = errors.New("unknown opcode")

// Opcode is a raw 4-byte command frame in wire order
type Opcode [protocol.CommandSize]byte

func (o Opcode) String() string {
	return hexBytes(o[:])
}

// CommandHandler answers a command after its checksum ack has been sent.
// It returns the bytes exchanged beyond the ack, for tracing.
type CommandHandler func(ctx context.Context, r *protocol.Responder, op Opcode) ([]byte, error)

// Command is one entry in the responder dispatch table
type Command struct {
	Name    string
	Opcode  Opcode
	Match   int // number of leading opcode bytes compared (2 or 4)
	Handler CommandHandler
}

// CommandTable maps opcodes to commands. Exact 4-byte entries win over
// 2-byte prefix entries. Every entry is independent; no entry falls
// through into another.
type CommandTable struct {
	mu     sync.RWMutex
	exact  map[Opcode]*Command
	prefix map[[2]byte]*Command
	order  []*Command
}

// NewCommandTable creates an empty command table
func NewCommandTable() *CommandTable {
	return &CommandTable{
		exact:  make(map[Opcode]*Command),
		prefix: make(map[[2]byte]*Command),
	}
}

// Register adds a command matched on all four opcode bytes
func (t *CommandTable) Register(name string, op Opcode, handler CommandHandler) *Command {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := &Command{Name: name, Opcode: op, Match: protocol.CommandSize, Handler: handler}
	t.remember(t.exact[op], cmd)
	t.exact[op] = cmd
	return cmd
}

// RegisterPrefix adds a command matched on the first two opcode bytes.
// The remaining two bytes are arguments.
func (t *CommandTable) RegisterPrefix(name string, prefix [2]byte, handler CommandHandler) *Command {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := &Command{Name: name, Opcode: Opcode{prefix[0], prefix[1]}, Match: 2, Handler: handler}
	t.remember(t.prefix[prefix], cmd)
	t.prefix[prefix] = cmd
	return cmd
}

// remember keeps registration order, replacing old in place if set.
// Must be called with lock held
func (t *CommandTable) remember(old, cmd *Command) {
	for i, c := range t.order {
		if old != nil && c == old {
			t.order[i] = cmd
			return
		}
	}
	t.order = append(t.order, cmd)
}

// Lookup finds the command for an opcode
func (t *CommandTable) Lookup(op Opcode) (*Command, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if cmd, ok := t.exact[op]; ok {
		return cmd, true
	}
	cmd, ok := t.prefix[[2]byte{op[0], op[1]}]
	return cmd, ok
}

// Count returns the number of registered commands
func (t *CommandTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.exact) + len(t.prefix)
}

// Names returns command names in registration order
func (t *CommandTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.order))
	for _, cmd := range t.order {
		names = append(names, cmd.Name)
	}
	return names
}

// Dispatch calls the handler registered for op. Commands without a
// handler are answered by the ack alone.
func (t *CommandTable) Dispatch(ctx context.Context, r *protocol.Responder, op Opcode) (*Command, []byte, error) {
	cmd, ok := t.Lookup(op)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	if cmd.Handler == nil {
		return cmd, nil, nil
	}
	data, err := cmd.Handler(ctx, r, op)
	return cmd, data, err
}
