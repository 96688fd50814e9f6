package boot

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/port"
)

// appValid inspects the first two words of the application region. Their
// meaning differs by CPU family: Cortex-M vector tables start with the
// initial stack pointer and the reset vector, while on RISC-V the first
// word is toolchain-dependent and only the entry address in the second
// word is checked.
func (b *Bootloader) appValid() bool {
	word0, err := b.readWord(b.cfg.AppBase)
	if err != nil {
		logrus.Errorf("application check failed: %v", err)
		return false
	}
	word1, err := b.readWord(b.cfg.AppBase + port.WordSize)
	if err != nil {
		logrus.Errorf("application check failed: %v", err)
		return false
	}

	appRegion := port.Region{Start: b.cfg.AppBase, End: b.cfg.AppBase + b.cfg.AppSize - 1}

	switch b.cfg.Arch {
	case ArchRISCV:
		entry := word1
		logrus.Infof("app word0=0x%08X entry=0x%08X", word0, entry)
		if !appRegion.Contains(entry) {
			logrus.Info("entry address outside application region")
			return false
		}
		if entry&0x1 != 0 {
			logrus.Info("entry address not 2-byte aligned")
			return false
		}
		if word0 == b.cfg.EraseSentinel || entry == b.cfg.EraseSentinel {
			logrus.Info("application region not programmed")
			return false
		}

	default: // ArchCortexM
		stack, reset := word0, word1
		logrus.Infof("app stack=0x%08X reset=0x%08X", stack, reset)
		stackOK := false
		for _, r := range b.cfg.RAMRegions {
			if r.Contains(stack) {
				stackOK = true
				break
			}
		}
		if !stackOK {
			logrus.Info("invalid initial stack pointer")
			return false
		}
		if !appRegion.Contains(reset) {
			logrus.Info("reset vector outside application region")
			return false
		}
		if reset&0x1 == 0 {
			logrus.Info("reset vector not thumb mode")
			return false
		}
		if stack == b.cfg.EraseSentinel || reset == b.cfg.EraseSentinel {
			logrus.Info("application region not programmed")
			return false
		}
	}

	return true
}

// readWord performs a bounds-checked typed read of one little-endian word.
func (b *Bootloader) readWord(addr uint32) (uint32, error) {
	var buf [port.WordSize]byte
	if err := b.p.FlashRead(addr, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "could not read word at 0x%08X", addr)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
