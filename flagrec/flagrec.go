// Package flagrec reads and writes the persistent boot flag record: three
// consecutive little-endian words (boot flag, application version, update
// date) at fixed offsets from the flag region base. The record selects, on
// every reset, whether the device stays in the bootloader or runs the
// application.
package flagrec

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/synthread/go-easyboot/port"
)

// Boot flag values. Anything else (including the erase-sentinel pattern of
// a never-written region) keeps the device in the bootloader.
const (
	FlagBootloader uint32 = 1
	FlagApp        uint32 = 2
)

// Word offsets from the flag region base.
const (
	flagOffset    = 0x00
	versionOffset = 0x04
	dateOffset    = 0x08
)

// RecordSize is the persisted footprint of the record in bytes.
const RecordSize = 12

// Record mirrors the persisted flag record.
type Record struct {
	Flag    uint32
	Version uint32
	Date    uint32
}

// Read loads the three record words verbatim. No validation is applied;
// an erased region reads back as the flash's erase-sentinel pattern.
func Read(p port.Port, base uint32) (Record, error) {
	var rec Record
	fields := []struct {
		offset uint32
		dst    *uint32
	}{
		{flagOffset, &rec.Flag},
		{versionOffset, &rec.Version},
		{dateOffset, &rec.Date},
	}
	var buf [port.WordSize]byte
	for _, f := range fields {
		if err := p.FlashRead(base+f.offset, buf[:]); err != nil {
			return Record{}, errors.Wrapf(err, "could not read flag record word at +0x%02X", f.offset)
		}
		*f.dst = binary.LittleEndian.Uint32(buf[:])
	}
	return rec, nil
}

// Write erases the whole flag region, then programs flag, version and date
// in that order. The sequence is not atomic: power loss after the erase
// leaves the record all-erased, which the boot decision treats as
// "stay in the bootloader".
func Write(p port.Port, base, size uint32, rec Record) error {
	if err := p.FlashErase(base, size); err != nil {
		return errors.Wrap(err, "could not erase flag region")
	}

	words := []struct {
		offset uint32
		value  uint32
	}{
		{flagOffset, rec.Flag},
		{versionOffset, rec.Version},
		{dateOffset, rec.Date},
	}
	var buf [port.WordSize]byte
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf[:], w.value)
		if err := p.FlashWrite(base+w.offset, buf[:]); err != nil {
			return errors.Wrapf(err, "could not program flag record word at +0x%02X", w.offset)
		}
	}
	return nil
}
