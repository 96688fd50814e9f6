package boot

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/port"
)

// prepareDownload erases the application region once per session. The
// erase is lazy: it runs when the first data frame of a download arrives,
// not at boot.
func (b *Bootloader) prepareDownload() error {
	if b.downloadActive {
		return nil
	}

	logrus.Info("erasing application region")
	start := b.p.Tick()
	if err := b.p.FlashErase(b.cfg.AppBase, b.cfg.AppSize); err != nil {
		return errors.Wrap(err, "could not erase application region")
	}
	logrus.Infof("erase done in %d ms", b.p.Tick()-start)

	b.currentAddr = b.cfg.AppBase
	b.residueLen = 0
	b.downloadActive = true
	return nil
}

// streamWrite programs payload bytes at currentAddr, never issuing a flash
// write smaller than one word. Up to WordSize-1 trailing bytes are carried
// in the residue buffer until the next call or flush.
func (b *Bootloader) streamWrite(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	offset := 0
	if b.residueLen > 0 {
		for b.residueLen < port.WordSize && offset < len(data) {
			b.residue[b.residueLen] = data[offset]
			b.residueLen++
			offset++
		}
		if b.residueLen == port.WordSize {
			if err := b.p.FlashWrite(b.currentAddr, b.residue[:]); err != nil {
				return errors.Wrap(err, "could not program buffered word")
			}
			b.currentAddr += port.WordSize
			b.residueLen = 0
		}
	}

	rest := data[offset:]
	aligned := alignDown(uint32(len(rest)), port.WordSize)
	if aligned > 0 {
		if err := b.p.FlashWrite(b.currentAddr, rest[:aligned]); err != nil {
			return errors.Wrap(err, "could not program payload")
		}
		b.currentAddr += aligned
		rest = rest[aligned:]
	}

	if len(rest) > 0 {
		b.residueLen = copy(b.residue[:], rest)
	}
	return nil
}

// streamFlush pads the residue with the erase-sentinel byte and commits
// the final word. Called only when the sender has signalled that no more
// image bytes are coming.
func (b *Bootloader) streamFlush() error {
	if b.residueLen == 0 {
		return nil
	}

	var padded [port.WordSize]byte
	copy(padded[:], b.residue[:b.residueLen])
	for i := b.residueLen; i < port.WordSize; i++ {
		padded[i] = byte(b.cfg.EraseSentinel)
	}

	if err := b.p.FlashWrite(b.currentAddr, padded[:]); err != nil {
		return errors.Wrap(err, "could not flush residue")
	}
	b.currentAddr += port.WordSize
	b.residueLen = 0
	return nil
}
