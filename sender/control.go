package sender

import (
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
)

// ResetControl drives the power and boot-select lines of a target wired to
// host GPIOs. Power-cycling with the boot pins low restarts the resident
// bootloader; BOOT0 high forces the vendor ROM loader instead, useful for
// recovering a device whose bootloader region itself was damaged.
type ResetControl struct {
	pinPower gpio.Pin
	pinBoot0 gpio.Pin
	pinBoot1 gpio.Pin
}

// NewResetControl claims the three GPIO lines. Power starts high (device
// running), boot pins low.
func NewResetControl(powerPin, boot0Pin, boot1Pin uint) (*ResetControl, error) {
	rc := &ResetControl{}
	var err error

	rc.pinPower, err = gpio.NewOutput(powerPin, true)
	if err != nil {
		return nil, errors.Wrap(err, "could not setup power pin")
	}
	rc.pinBoot0, err = gpio.NewOutput(boot0Pin, false)
	if err != nil {
		return nil, errors.Wrap(err, "could not setup boot0 pin")
	}
	rc.pinBoot1, err = gpio.NewOutput(boot1Pin, false)
	if err != nil {
		return nil, errors.Wrap(err, "could not setup boot1 pin")
	}

	return rc, nil
}

// PowerCycle restarts the target with the boot pins low, bringing up
// whatever the flag record selects.
func (rc *ResetControl) PowerCycle() {
	rc.pinPower.Low()
	rc.pinBoot0.Low()
	rc.pinBoot1.Low()
	time.Sleep(10 * time.Millisecond)
	rc.pinPower.High()
	time.Sleep(10 * time.Millisecond)
}

// EnterROMLoader power-cycles with BOOT0 high so the chip comes up in its
// vendor ROM loader instead of the resident bootloader.
func (rc *ResetControl) EnterROMLoader() {
	rc.pinPower.Low()
	rc.pinBoot0.High()
	rc.pinBoot1.Low()
	time.Sleep(10 * time.Millisecond)
	rc.pinPower.High()
	time.Sleep(10 * time.Millisecond)
}

// Cleanup releases the GPIO lines, leaving the target in a running state.
func (rc *ResetControl) Cleanup() {
	rc.pinBoot0.Cleanup()
	rc.pinBoot1.Cleanup()
	rc.pinPower.Cleanup()
}
