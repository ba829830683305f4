package gv6

import (
	"io"

	"github.com/pkg/errors"
)

// ErrNoReply is returned when the instrument sends nothing back before the
// link's read timeout expires. It indicates a dead or disconnected drive, as
// opposed to the in-motion case where the drive replies without a value.
var ErrNoReply = errors.New("no reply from instrument before read timeout")

// serialConnection adapts a raw serial port to the Connection interface. The
// port must be opened with an inter-character timeout so a read that returns
// no data marks the end of a reply.
type serialConnection struct {
	rwc io.ReadWriteCloser
}

// NewSerialConnection wraps an opened serial port in a line-oriented
// Connection.
func NewSerialConnection(rwc io.ReadWriteCloser) Connection {
	return &serialConnection{rwc: rwc}
}

func (c *serialConnection) Write(data string) error {
	_, err := c.rwc.Write([]byte(data))
	return err
}

// ReadLines drains the port until the timeout ends the read, then splits the
// reply after each newline, terminators preserved.
func (c *serialConnection) ReadLines() ([]string, error) {
	var reply []byte
	chunk := make([]byte, 128)
	for {
		n, err := c.rwc.Read(chunk)
		reply = append(reply, chunk[:n]...)
		if err != nil {
			// the port reports an expired timeout as EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	if len(reply) == 0 {
		return nil, ErrNoReply
	}
	return splitAfterNewlines(reply), nil
}

func (c *serialConnection) Close() error {
	return c.rwc.Close()
}

func splitAfterNewlines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
