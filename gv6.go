// Package gv6 implements a driver for the Parker Gemini GV6 servo motor controller.
//
// The controller speaks a line-oriented ASCII protocol over a serial link:
// commands are uppercase mnemonics, optionally followed by a decimal argument,
// terminated with a carriage return. Replies are framed with "\r\n\n" plus an
// optional prompt character ('>' ready, '?' error) which the driver strips.
// Motion setpoints are given in encoder counts; 4000 counts is one revolution.
package gv6

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/benchtop/gv6/serial"
)

// DegreesPerCount converts encoder counts to degrees. The controller reports
// 4000 counts per revolution and the axis is geared so 90 degrees is one
// revolution (360/800000 degrees per count).
const DegreesPerCount = 0.00045

const (
	defaultBaudRate    = 9600
	defaultReadTimeout = 500 * time.Millisecond

	// The drive needs roughly five seconds after RESET before it accepts
	// command traffic again.
	defaultResetDelay = 5 * time.Second

	defaultAcceleration = 1.0 // rev/s^2
	defaultVelocity     = 3.0 // rev/s
)

// Config describes how to connect to and initialize a GV6.
type Config struct {
	// SerialPath is the path to the serial device, e.g. /dev/ttyUSB0.
	SerialPath string `json:"serial_path"`

	// BaudRate of the serial link. The GV6 ships configured for 9600.
	BaudRate int `json:"serial_baud_rate,omitempty"`

	// ReadTimeout bounds how long a query waits for the instrument's reply.
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`

	// ResetDelay is how long Reset waits for the drive to settle before
	// reapplying defaults.
	ResetDelay time.Duration `json:"reset_delay,omitempty"`

	// Acceleration and AverageAcceleration in rev/s^2 and Velocity in rev/s
	// are applied at construction and again after a Reset.
	Acceleration        float64 `json:"acceleration,omitempty"`
	AverageAcceleration float64 `json:"average_acceleration,omitempty"`
	Velocity            float64 `json:"velocity,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SerialPath == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "serial_path")
	}
	if cfg.BaudRate < 0 {
		return goutils.NewConfigValidationError(path, errors.New("serial_baud_rate cannot be negative"))
	}
	return nil
}

func (cfg *Config) populateDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ResetDelay == 0 {
		cfg.ResetDelay = defaultResetDelay
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = defaultAcceleration
	}
	if cfg.AverageAcceleration == 0 {
		cfg.AverageAcceleration = defaultAcceleration
	}
	if cfg.Velocity == 0 {
		cfg.Velocity = defaultVelocity
	}
}

// Connection is the transport a Controller speaks over. Write must deliver the
// payload unmodified; ReadLines returns however many reply lines arrive before
// the link's read timeout, line terminators preserved.
type Connection interface {
	Write(data string) error
	ReadLines() ([]string, error)
	Close() error
}

// Controller is a single-axis Parker Gemini GV6 servo motor controller.
//
// Every operation performs blocking serial I/O and the instrument keeps all
// state; the driver holds no local copy of any setpoint. A Controller is not
// safe for concurrent use: callers sharing one must serialize access
// themselves, e.g. with a single owning goroutine per physical connection.
type Controller struct {
	conn   Connection
	cfg    Config
	logger golog.Logger
}

// New opens the serial device and initializes the drive with the default
// configuration: command echo off, hardware limits off, absolute positioning,
// and the configured acceleration and velocity setpoints.
func New(ctx context.Context, cfg Config, logger golog.Logger) (*Controller, error) {
	cfg.populateDefaults()
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	dev, err := serial.Open(cfg.SerialPath, serial.Options{
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open GV6 serial device %q", cfg.SerialPath)
	}
	return NewFromConnection(ctx, NewSerialConnection(dev), cfg, logger)
}

// NewFromConnection initializes the drive over an already open connection. The
// controller takes ownership of the connection and closes it on Close or when
// initialization fails.
func NewFromConnection(ctx context.Context, conn Connection, cfg Config, logger golog.Logger) (*Controller, error) {
	cfg.populateDefaults()
	c := &Controller{conn: conn, cfg: cfg, logger: logger}
	if err := c.setDefaults(ctx); err != nil {
		return nil, multierr.Combine(err, conn.Close())
	}
	return c, nil
}

func (c *Controller) setDefaults(ctx context.Context) error {
	if err := c.SetEcho(ctx, false); err != nil {
		return err
	}
	if err := c.SetHardwareLimits(ctx, false); err != nil {
		return err
	}
	if err := c.SetAbsolutePosition(ctx); err != nil {
		return err
	}
	if err := c.SetAverageAcceleration(ctx, c.cfg.AverageAcceleration); err != nil {
		return err
	}
	if err := c.SetAcceleration(ctx, c.cfg.Acceleration); err != nil {
		return err
	}
	return c.SetVelocity(ctx, c.cfg.Velocity)
}

// sendCmd writes one mnemonic to the instrument. Pure actuation commands get
// no reply, so a nil return only means the transport accepted the write.
func (c *Controller) sendCmd(cmd string) error {
	c.logger.Debugw("sending command", "cmd", cmd)
	if err := c.conn.Write(cmd + commandTerminator); err != nil {
		return errors.Wrapf(err, "error sending %q to GV6", cmd)
	}
	return nil
}

// ask sends a query and returns its reply with the framing and prompt
// artifacts stripped.
func (c *Controller) ask(cmd string) (string, error) {
	if err := c.sendCmd(cmd); err != nil {
		return "", err
	}
	lines, err := c.conn.ReadLines()
	if err != nil {
		return "", errors.Wrapf(err, "error reading reply to %q", cmd)
	}
	return normalizeReply(strings.Join(lines, "")), nil
}

// Reset restarts the drive. CAUTION: the hardware clears its absolute position
// reference, so any position calibration is lost. The call blocks for
// Config.ResetDelay while the drive settles, then reapplies the default
// configuration and enables the drive. Canceling ctx abandons the wait without
// reconfiguring.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.sendCmd("RESET"); err != nil {
		return err
	}
	if !goutils.SelectContextOrWait(ctx, c.cfg.ResetDelay) {
		return ctx.Err()
	}
	if err := c.setDefaults(ctx); err != nil {
		return err
	}
	return c.Enable(ctx)
}

// Enable allows the motor to move.
func (c *Controller) Enable(ctx context.Context) error {
	return c.sendCmd("DRIVE1")
}

// Disable prevents the motor from moving.
func (c *Controller) Disable(ctx context.Context) error {
	return c.sendCmd("DRIVE0")
}

// Status returns the drive's status report, one string per status line.
func (c *Controller) Status(ctx context.Context) ([]string, error) {
	reply, err := c.ask("TASF")
	if err != nil {
		return nil, err
	}
	return strings.Split(reply, replyTerminator), nil
}

// IsMoving reports whether the axis is in motion. The instrument withholds the
// position count while moving, so a position query with no value means busy.
func (c *Controller) IsMoving(ctx context.Context) (bool, error) {
	_, ok, err := c.Position(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Position reports the axis position in encoder counts. ok is false when the
// instrument omits the count, which it does while the axis is in motion; that
// is a busy signal, not a failure.
func (c *Controller) Position(ctx context.Context) (counts int, ok bool, err error) {
	return c.queryCount("TPE")
}

// PositionError reports the difference between the commanded and actual
// position in encoder counts, with the same no-value semantics as Position.
func (c *Controller) PositionError(ctx context.Context) (counts int, ok bool, err error) {
	return c.queryCount("TPER")
}

func (c *Controller) queryCount(label string) (int, bool, error) {
	reply, err := c.ask(label)
	if err != nil {
		return 0, false, err
	}
	counts, ok := parseCount(reply, label)
	return counts, ok, nil
}

// Angle reports the axis position in degrees, with the same no-value
// semantics as Position.
func (c *Controller) Angle(ctx context.Context) (float64, bool, error) {
	counts, ok, err := c.Position(ctx)
	if err != nil || !ok {
		return 0, ok, err
	}
	return float64(counts) * DegreesPerCount, true, nil
}

// AngleError reports the position error in degrees, with the same no-value
// semantics as PositionError.
func (c *Controller) AngleError(ctx context.Context) (float64, bool, error) {
	counts, ok, err := c.PositionError(ctx)
	if err != nil || !ok {
		return 0, ok, err
	}
	return float64(counts) * DegreesPerCount, true, nil
}

// SetPosition gives the motor a setpoint in encoder counts. Whether it is
// measured from absolute zero or from the current position depends on the
// positioning mode.
func (c *Controller) SetPosition(ctx context.Context, counts int) error {
	return c.sendCmd("D" + strconv.Itoa(counts))
}

// SetAngle gives the motor a setpoint in degrees, truncated to whole counts.
func (c *Controller) SetAngle(ctx context.Context, degrees float64) error {
	return c.SetPosition(ctx, int(degrees/DegreesPerCount))
}

// Move starts motion toward the current setpoint.
func (c *Controller) Move(ctx context.Context) error {
	return c.sendCmd("GO")
}

// Stop decelerates the motor to a stop.
func (c *Controller) Stop(ctx context.Context) error {
	return c.sendCmd("S")
}

// Kill stops the motor immediately, without deceleration.
func (c *Controller) Kill(ctx context.Context) error {
	return c.sendCmd("K")
}

// SetAbsolutePosition makes subsequent setpoints absolute, measured from the
// drive's zero reference.
func (c *Controller) SetAbsolutePosition(ctx context.Context) error {
	if err := c.sendCmd("MA1"); err != nil {
		return err
	}
	return c.sendCmd("MC0")
}

// SetRelativePosition makes subsequent setpoints relative to the position at
// the time of the move.
func (c *Controller) SetRelativePosition(ctx context.Context) error {
	if err := c.sendCmd("MA0"); err != nil {
		return err
	}
	return c.sendCmd("MC0")
}

// SetHardwareLimits enables or disables the drive's hardware limit inputs.
func (c *Controller) SetHardwareLimits(ctx context.Context, enable bool) error {
	if enable {
		return c.sendCmd("LH1")
	}
	return c.sendCmd("LH0")
}

// SetSoftwareLimits sets the software travel limits in encoder counts.
func (c *Controller) SetSoftwareLimits(ctx context.Context, positive, negative int) error {
	if err := c.sendCmd("LSPOS" + strconv.Itoa(positive)); err != nil {
		return err
	}
	return c.sendCmd("LSNEG" + strconv.Itoa(negative))
}

// SetEcho enables or disables the instrument echoing every command it
// receives. The driver turns echo off at construction so replies contain only
// reports.
func (c *Controller) SetEcho(ctx context.Context, enable bool) error {
	if enable {
		return c.sendCmd("ECHO1")
	}
	return c.sendCmd("ECHO0")
}

// SetAcceleration sets the acceleration setpoint in rev/s^2.
func (c *Controller) SetAcceleration(ctx context.Context, acceleration float64) error {
	return c.sendCmd("A" + formatRevs(acceleration))
}

// SetAverageAcceleration sets the average acceleration setpoint in rev/s^2.
func (c *Controller) SetAverageAcceleration(ctx context.Context, acceleration float64) error {
	return c.sendCmd("AA" + formatRevs(acceleration))
}

// SetVelocity sets the velocity setpoint in rev/s.
func (c *Controller) SetVelocity(ctx context.Context, velocity float64) error {
	return c.sendCmd("V" + formatRevs(velocity))
}

// Close closes the underlying connection.
func (c *Controller) Close() error {
	return c.conn.Close()
}
