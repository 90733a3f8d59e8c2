//go:build linux

package main

import (
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lensbus/bus"
	"lensbus/bus/gpiochip"
	"lensbus/core"
	"lensbus/protocol"
)

var (
	cmdBody = &cobra.Command{
		Use:   "body",
		Short: "Act as the camera body on GPIO lines",
		Long:  ``,
		RunE:  runBody,
	}
	cmdLens = &cobra.Command{
		Use:   "lens",
		Short: "Act as the lens on GPIO lines",
		Long:  ``,
		RunE:  runLens,
	}
)

var bodyCycles int

// ErrShiftOnGPIO is returned when the shift transport is asked for on a
// GPIO character device, which has no shift-register peripheral
var ErrShiftOnGPIO = errors.New("the shift transport needs a shift-register peripheral; use bitbang")

func init() {
	rootCmd.AddCommand(cmdBody)
	rootCmd.AddCommand(cmdLens)
	cmdBody.Flags().IntVarP(&bodyCycles, "cycles", "n", 0, "Parameter-change cycles to run (0 runs until interrupted)")
}

// openChip requests the configured lines, watching the peer's lines for role
func openChip(rt *app, role protocol.Role) (*gpiochip.Chip, error) {
	if rt.transport == protocol.ShiftRegister {
		return nil, ErrShiftOnGPIO
	}
	g := rt.conf.GPIO
	if g == nil {
		return nil, errors.New("no gpio block in configuration")
	}
	offsets, err := g.Offsets()
	if err != nil {
		return nil, err
	}
	watch := gpiochip.BodyWatch
	if role == protocol.RoleResponder {
		watch = gpiochip.LensWatch
	}
	return gpiochip.Open(gpiochip.Config{
		Chip:     g.Chip,
		Consumer: g.Consumer,
		Offsets:  offsets,
		Watch:    watch,
	})
}

func runBody(_ *cobra.Command, _ []string) error {
	rt, err := newApp("body")
	if err != nil {
		return err
	}
	defer rt.Close()

	chip, err := openChip(rt, protocol.RoleInitiator)
	if err != nil {
		return err
	}
	defer chip.Close()

	ctx, stop := signalContext()
	defer stop()

	link := rt.link(uuid.NewString())
	link.Lines = chip
	cfg, err := rt.bodyConfig(link, bodyCycles)
	if err != nil {
		return err
	}
	body, err := core.NewBody(cfg)
	if err != nil {
		return err
	}

	err = body.Run(ctx)
	rt.report()
	if ended(err) {
		return nil
	}
	return err
}

func runLens(_ *cobra.Command, _ []string) error {
	rt, err := newApp("lens")
	if err != nil {
		return err
	}
	defer rt.Close()

	chip, err := openChip(rt, protocol.RoleResponder)
	if err != nil {
		return err
	}
	defer chip.Close()

	ctx, stop := signalContext()
	defer stop()

	// Each power cycle from the body is a new session
	for {
		link := rt.link(uuid.NewString())
		link.Lines = chip
		cfg, err := rt.lensConfig(link)
		if err != nil {
			return err
		}
		lens, err := core.NewLens(cfg)
		if err != nil {
			return err
		}
		err = lens.Run(ctx)
		if ctx.Err() != nil {
			rt.report()
			return nil
		}
		if errors.Is(err, bus.ErrClosed) {
			return err
		}
		if errors.Is(err, core.ErrPowerLost) {
			rt.log.Info().Msg("power cycle, new session")
			continue
		}
		rt.log.Warn().Err(err).Msg("lens session ended")
	}
}
