// Package serial opens the serial devices instrument drivers talk through.
package serial

import (
	"io"
	"time"

	goserial "github.com/jacobsa/go-serial/serial"
)

// Options for opening a device.
type Options struct {
	// BaudRate of the link.
	BaudRate int
	// ReadTimeout is how long a read waits once the device goes quiet; it
	// bounds every query against an instrument that replies with nothing.
	ReadTimeout time.Duration
}

// Open attempts to open a serial device on the given path with 8 data bits
// and 1 stop bit. It's a variable in case you need to override it during
// tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	opts := goserial.OpenOptions{
		PortName:              devicePath,
		BaudRate:              uint(options.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(options.ReadTimeout / time.Millisecond),
	}
	return goserial.Open(opts)
}
