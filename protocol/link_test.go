package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lensbus/bus"
	"lensbus/bus/sim"
)

// link is a body and a lens framer joined by a simulated wire
type link struct {
	wire      *sim.Wire
	bodyLines *sim.Port
	lensLines *sim.Port
	lensShift *sim.ShiftRegister
	bodyT     Transport
	lensT     Transport
	body      *Initiator
	lens      *Responder
}

func newLink(t *testing.T, rev Revision, kind TransportKind) *link {
	t.Helper()

	w := sim.NewWire()
	t.Cleanup(w.Close)
	bp, lp := w.Body(), w.Lens()
	require.NoError(t, bp.SetDirection(bus.Clock, bus.Output))

	lensShift := lp.ShiftRegister()
	bodyT, err := NewTransport(RoleInitiator, kind, bp, bp.ShiftRegister(), rev, bus.NoDelay{})
	require.NoError(t, err)
	lensT, err := NewTransport(RoleResponder, kind, lp, lensShift, rev, bus.NoDelay{})
	require.NoError(t, err)

	bs := NewSynchronizer(bp, RoleInitiator, rev, bus.NoDelay{})
	require.NoError(t, bs.Configure())
	ls := NewSynchronizer(lp, RoleResponder, rev, bus.NoDelay{})
	require.NoError(t, ls.Configure())

	return &link{
		wire:      w,
		bodyLines: bp,
		lensLines: lp,
		lensShift: lensShift,
		bodyT:     bodyT,
		lensT:     lensT,
		body:      NewInitiator(bodyT, bs, rev, bus.NoDelay{}),
		lens:      NewResponder(lensT, ls, rev),
	}
}

// goRun runs fn in a goroutine and returns its result channel
func goRun(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- fn()
	}()
	return ch
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not finish")
		return nil
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// variants covers every revision with every transport
var variants = []struct {
	name string
	rev  Revision
	kind TransportKind
}{
	{"legacy/bitbang", Legacy, BitBang},
	{"legacy/shift", Legacy, ShiftRegister},
	{"revised/bitbang", Revised, BitBang},
	{"revised/shift", Revised, ShiftRegister},
}
