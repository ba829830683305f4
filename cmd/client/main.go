// Package main contains a command to move a GV6 servo motor to an angle.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/benchtop/gv6"
)

var logger = golog.NewDevelopmentLogger("gv6_client")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Device string  `flag:"device,usage=serial device path"`
	Angle  float64 `flag:"angle,usage=target angle in degrees"`
	Reset  bool    `flag:"reset,usage=reset the drive first (erases position calibration)"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Device == "" {
		return errors.New("must supply a serial device path")
	}
	return moveToAngle(ctx, argsParsed.Device, argsParsed.Angle, argsParsed.Reset)
}

func moveToAngle(ctx context.Context, devicePath string, angle float64, reset bool) (err error) {
	motor, err := gv6.New(ctx, gv6.Config{SerialPath: devicePath}, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, motor.Close())
	}()

	if reset {
		logger.Info("resetting drive; absolute position calibration will be lost")
		if err := motor.Reset(ctx); err != nil {
			return err
		}
	}

	if err := motor.Enable(ctx); err != nil {
		return err
	}
	if err := motor.SetAngle(ctx, angle); err != nil {
		return err
	}
	if err := motor.Move(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !utils.SelectContextOrWaitChan(ctx, ticker.C) {
			return multierr.Combine(ctx.Err(), motor.Stop(ctx))
		}

		moving, err := motor.IsMoving(ctx)
		if err != nil {
			return err
		}
		if moving {
			logger.Debug("still moving")
			continue
		}

		current, ok, err := motor.Angle(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		logger.Infow("move complete", "angle", current)
		return nil
	}
}
