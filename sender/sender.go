// Package sender implements the host side of the update protocol. An
// Uploader splits a firmware image into data frames sized to the target's
// packet budget, waits for the bootloader's acknowledgement after each
// one, and seals the download with a finish frame carrying the new version
// and date. It also speaks the application-side command exchange used to
// trigger an update in the first place.
package sender

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/protocol"
)

var DefaultMaxPacket = 1024

// AckTimeoutFirst covers the application-region erase triggered by the
// first frame; later frames complete much faster.
var AckTimeoutFirst = 10 * time.Second
var AckTimeout = 5 * time.Second

var ErrTimeout = errors.New("timed out waiting for the device")

// Config defines how the uploader talks to the target.
type Config struct {
	// MaxPacket is the whole-frame budget including the 11 fixed bytes.
	MaxPacket int

	// AppBase is the expected image base address, checked against HEX
	// files. Zero disables the check.
	AppBase uint32

	// Version and Date are sealed into the flag record by the finish
	// frame and offered in trigger-update commands.
	Version uint32
	Date    uint32
}

// Uploader drives one device over any byte-stream transport.
type Uploader struct {
	dev    io.ReadWriter
	config *Config

	rx chan byte
}

// New creates an Uploader and starts its receive pump. The device is
// typically a serial port from OpenSerial but any io.ReadWriter works.
func New(dev io.ReadWriter, c *Config) *Uploader {
	if c == nil {
		c = &Config{}
	}
	if c.MaxPacket <= protocol.DataFrameOverhead {
		c.MaxPacket = DefaultMaxPacket
	}

	u := &Uploader{
		dev:    dev,
		config: c,
		rx:     make(chan byte, 256),
	}
	go u.pump()
	return u
}

// pump is the loop that forever reads from the device and forwards the
// incoming bytes to the rx chan.
func (u *Uploader) pump() {
	buf := make([]byte, 64)
	for {
		n, err := u.dev.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			u.rx <- b
		}
		if n > 0 {
			logrus.Debugf("dev rx: %x", buf[:n])
		}
	}
}

func (u *Uploader) write(data []byte) error {
	if _, err := u.dev.Write(data); err != nil {
		return err
	}
	logrus.Debugf("dev tx: %x", data)
	return nil
}

// waitAck consumes device bytes until the 6-byte acknowledgement pattern
// appears or the timeout expires. Log output interleaved on the same UART
// slides through the match window harmlessly.
func (u *Uploader) waitAck(to time.Duration) error {
	deadline := time.After(to)
	window := make([]byte, 0, len(protocol.Ack))
	for {
		select {
		case <-deadline:
			return ErrTimeout
		case b := <-u.rx:
			window = append(window, b)
			if len(window) > len(protocol.Ack) {
				window = window[1:]
			}
			if bytes.Equal(window, protocol.Ack) {
				return nil
			}
		}
	}
}

// readLine collects bytes up to a newline, used for the application
// agent's text replies.
func (u *Uploader) readLine(to time.Duration) (string, error) {
	deadline := time.After(to)
	var line []byte
	for {
		select {
		case <-deadline:
			return "", ErrTimeout
		case b := <-u.rx:
			if b == '\n' {
				return strings.TrimRight(string(line), "\r"), nil
			}
			line = append(line, b)
		}
	}
}

// Upload streams the image to the bootloader frame by frame and seals it
// with a finish frame.
func (u *Uploader) Upload(image []byte) error {
	if len(image) == 0 {
		return errors.New("image is empty")
	}

	maxPayload := u.config.MaxPacket - protocol.DataFrameOverhead
	total := len(image)
	offset := 0
	first := true

	for offset < total {
		chunk := image[offset:min(offset+maxPayload, total)]
		offset += len(chunk)

		frame, err := protocol.DataFrame(chunk, uint32(total-offset))
		if err != nil {
			return err
		}
		if err := u.write(frame); err != nil {
			return errors.Wrap(err, "could not send data frame")
		}

		to := AckTimeout
		if first {
			to = AckTimeoutFirst
			first = false
		}
		if err := u.waitAck(to); err != nil {
			return errors.Wrapf(err, "no ack for bytes %d..%d", offset-len(chunk), offset)
		}
		logrus.Debugf("sent %d/%d bytes", offset, total)
	}

	logrus.Info("image sent, sealing with finish frame")
	if err := u.write(protocol.FinishFrame(u.config.Version, u.config.Date)); err != nil {
		return errors.Wrap(err, "could not send finish frame")
	}
	if err := u.waitAck(AckTimeout); err != nil {
		return errors.Wrap(err, "no ack for finish frame")
	}

	logrus.Info("upload complete, device resetting into the new image")
	return nil
}

// UploadFile loads a .bin or Intel HEX image from disk and uploads it.
// HEX files must match the configured application base address.
func (u *Uploader) UploadFile(path string) error {
	image, base, err := LoadImage(path)
	if err != nil {
		return err
	}
	if base != 0 && u.config.AppBase != 0 && base != u.config.AppBase {
		return errors.Errorf("image base 0x%08X does not match application region 0x%08X",
			base, u.config.AppBase)
	}
	logrus.Infof("uploading %s (%d bytes)", path, len(image))
	return u.Upload(image)
}

// TriggerUpdate asks the running application to reboot into the
// bootloader. The application acknowledges only when the offered version
// differs from the installed one.
func (u *Uploader) TriggerUpdate() error {
	if err := u.write(protocol.TriggerFrame(u.config.Version, u.config.Date)); err != nil {
		return errors.Wrap(err, "could not send trigger frame")
	}
	return u.waitAck(AckTimeout)
}

// QueryVersion returns the application's version reply, e.g. "version:3".
func (u *Uploader) QueryVersion() (string, error) {
	return u.query(protocol.QueryVersion)
}

// QueryDate returns the application's update date reply, e.g. "2025-12-01".
func (u *Uploader) QueryDate() (string, error) {
	return u.query(protocol.QueryDate)
}

func (u *Uploader) query(cmd []byte) (string, error) {
	if err := u.write(cmd); err != nil {
		return "", errors.Wrap(err, "could not send query")
	}
	return u.readLine(AckTimeout)
}
