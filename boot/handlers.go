package boot

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/flagrec"
	"github.com/synthread/go-easyboot/port"
	"github.com/synthread/go-easyboot/protocol"
)

// ErrRangeOverflow means committing a payload would run past the end of
// the application region.
var ErrRangeOverflow = errors.New("write would exceed the application region")

// ErrUnexpectedFinish means a finish frame arrived while the engine was
// not waiting for one.
var ErrUnexpectedFinish = errors.New("finish frame outside the awaiting-finish state")

// handlePayload runs one extracted data frame through the state machine:
// lazy erase on the first frame, bounds check, stream write, and on the
// last frame either the hand-off to the finish frame or the seal-and-reset
// sequence, depending on the target's capabilities.
func (b *Bootloader) handlePayload(remaining uint32, payloadLen int) error {
	if err := b.prepareDownload(); err != nil {
		return err
	}
	b.state = StateReceiving

	// Worst case assumes residue and payload all end up committed,
	// rounded up to the word the flush would pad.
	worst := alignUp(uint32(b.residueLen+payloadLen), port.WordSize)
	if b.currentAddr+worst > b.cfg.AppBase+b.cfg.AppSize {
		logrus.Errorf("flash range overflow at 0x%08X", b.currentAddr)
		return ErrRangeOverflow
	}

	if err := b.streamWrite(b.payloadBuf[:payloadLen]); err != nil {
		return err
	}

	if remaining == 0 {
		if err := b.streamFlush(); err != nil {
			return err
		}
		b.downloadActive = false
		logrus.Infof("image received, %d bytes", b.currentAddr-b.cfg.AppBase)

		if !b.cfg.FinishFrame {
			// No finish frame on this target: seal with the version and
			// date already stored in the record.
			return b.sealAndReset(b.rec.Version, b.rec.Date)
		}
		b.state = StateAwaitingFinish
		logrus.Info("waiting for finish frame")
	}

	if err := b.p.UARTWrite(protocol.Ack); err != nil {
		return errors.Wrap(err, "could not send ack")
	}
	return nil
}

// handleFinish seals the download with the version and date from the
// finish frame. A finish frame in any other state is a session-fatal
// error; the caller resets back to idle.
func (b *Bootloader) handleFinish(version, date uint32) error {
	logrus.Infof("finish frame: version=0x%08X date=0x%08X", version, date)
	if b.state != StateAwaitingFinish {
		return ErrUnexpectedFinish
	}
	return b.sealAndReset(version, date)
}

// sealAndReset commits the run-application record, acknowledges the sender
// and reboots. The record is only ever written after every stream write
// and the final flush have succeeded, so a record that reads FlagApp
// implies a fully committed image.
func (b *Bootloader) sealAndReset(version, date uint32) error {
	rec := flagrec.Record{Flag: flagrec.FlagApp, Version: version, Date: date}
	if err := flagrec.Write(b.p, b.cfg.FlagRegionBase, b.cfg.FlagRegionSize, rec); err != nil {
		return errors.Wrap(err, "could not write flag record")
	}
	b.rec = rec
	logrus.Infof("flag record sealed: version=0x%08X date=0x%08X", version, date)

	if err := b.p.UARTWrite(protocol.Ack); err != nil {
		logrus.Errorf("ack send failed: %v", err)
	}

	logrus.Info("resetting to run application")
	b.p.SystemReset()

	// A hardware port never returns from SystemReset. A simulated one
	// does; start a fresh session so the engine stays consistent.
	b.resetSession()
	return nil
}
