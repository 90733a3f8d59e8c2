package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lensbus/bus"
	"lensbus/bus/sim"
	"lensbus/core"
	"lensbus/protocol"
)

var (
	cmdSim = &cobra.Command{
		Use:   "sim",
		Short: "Run a body and a lens against each other in memory",
		Long:  ``,
		RunE:  runSim,
	}
)

var (
	simCycles   int
	simSessions int
)

func init() {
	rootCmd.AddCommand(cmdSim)
	cmdSim.Flags().IntVarP(&simCycles, "cycles", "n", 3, "Parameter-change cycles to run (0 runs until interrupted)")
	cmdSim.Flags().IntVarP(&simSessions, "sessions", "s", 1, "Power cycles the body runs against the same lens")
}

func runSim(_ *cobra.Command, _ []string) error {
	if simSessions < 1 {
		return fmt.Errorf("sessions must be at least 1, got %d", simSessions)
	}
	rt, err := newApp("sim")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	id := uuid.NewString()
	if err := simulate(ctx, rt, id, simCycles, simSessions); err != nil {
		return err
	}
	rt.report()
	return nil
}

// simulate runs the body through sessions power cycles on a fresh wire,
// against one lens that starts over on every power loss. The lens is
// stopped once the body has powered down for the last time.
func simulate(ctx context.Context, rt *app, id string, cycles, sessions int) error {
	wire := sim.NewWire()
	defer wire.Close()

	bodyLink := rt.link(id)
	bodyLink.Lines = wire.Body()
	lensLink := rt.link(id)
	lensLink.Lines = wire.Lens()
	if rt.transport == protocol.ShiftRegister {
		bodyLink.Shift = wire.Body().ShiftRegister()
		lensLink.Shift = wire.Lens().ShiftRegister()
	}

	bodyCfg, err := rt.bodyConfig(bodyLink, cycles)
	if err != nil {
		return err
	}
	lensCfg, err := rt.lensConfig(lensLink)
	if err != nil {
		return err
	}
	body, err := core.NewBody(bodyCfg)
	if err != nil {
		return err
	}
	lens, err := core.NewLens(lensCfg)
	if err != nil {
		return err
	}

	rt.log.Info().Str("session", id).Int("cycles", cycles).Int("sessions", sessions).Msg("simulating")

	lensCtx, stopLens := context.WithCancel(ctx)
	defer stopLens()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			err := lens.Run(lensCtx)
			if errors.Is(err, core.ErrPowerLost) {
				continue
			}
			if ended(err) || (lensCtx.Err() != nil && errors.Is(err, bus.ErrClosed)) {
				return nil
			}
			return err
		}
	})
	g.Go(func() error {
		defer func() {
			stopLens()
			// The lens may be parked mid-byte on the wire
			wire.Close()
		}()
		for i := 0; i < sessions; i++ {
			err := body.Run(gctx)
			if ended(err) && gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}
