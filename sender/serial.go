package sender

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

var DefaultBaud = 115200

// OpenSerial opens the given tty at 8N1 for talking to the device. The
// short read timeout keeps the receive pump responsive without spinning.
func OpenSerial(tty string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	p, err := serial.Open(tty, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not open serial")
	}

	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, errors.Wrap(err, "could not set read timeout")
	}

	return p, nil
}
