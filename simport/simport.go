// Package simport provides an in-memory port.Port implementation for
// tests and host-side simulation. Flash regions are plain byte slices that
// honor the erase sentinel and the word alignment rules; UART receive is
// fed through a ring buffer the way a receive interrupt would.
package simport

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/synthread/go-easyboot/port"
	"github.com/synthread/go-easyboot/ringbuf"
)

const rxRingSize = 4096

type memRegion struct {
	start uint32
	data  []byte
}

// Sim is a simulated device port. The exported fields inject failures and
// observe side effects; tests set and read them directly.
type Sim struct {
	// EraseErr, when set, is returned by every FlashErase call.
	EraseErr error

	// WriteErr, when set, is returned by FlashWrite after SucceedWrites
	// more writes have completed.
	WriteErr      error
	SucceedWrites int

	// ResetCount counts SystemReset calls; JumpedTo records the last
	// JumpToApp address (zero when never called).
	ResetCount int
	JumpedTo   uint32

	// EraseCount and WriteCount count successful FlashErase and
	// FlashWrite calls.
	EraseCount int
	WriteCount int

	sentinel byte
	regions  []memRegion
	rx       *ringbuf.Ring
	tx       bytes.Buffer
	tick     uint32
}

// New creates a simulated port whose flash erases to the given byte value.
func New(sentinel byte) *Sim {
	return &Sim{
		sentinel: sentinel,
		rx:       ringbuf.New(rxRingSize),
	}
}

// AddRegion registers a flash region, pre-filled with the erase sentinel.
func (s *Sim) AddRegion(start, size uint32) {
	data := bytes.Repeat([]byte{s.sentinel}, int(size))
	s.regions = append(s.regions, memRegion{start: start, data: data})
}

// FeedUART queues bytes for the device to read, as a receive interrupt
// would. Bytes that do not fit in the ring are dropped.
func (s *Sim) FeedUART(data []byte) int {
	return s.rx.Put(data)
}

// TxBytes returns everything the device has written to its UART so far.
func (s *Sim) TxBytes() []byte {
	return s.tx.Bytes()
}

// ClearTx discards the captured UART output.
func (s *Sim) ClearTx() {
	s.tx.Reset()
}

// Mem returns a copy of n flash bytes starting at addr.
func (s *Sim) Mem(addr uint32, n int) []byte {
	r := s.find(addr, uint32(n))
	if r == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[addr-r.start:])
	return out
}

func (s *Sim) find(addr, size uint32) *memRegion {
	for i := range s.regions {
		r := &s.regions[i]
		if addr >= r.start && addr+size <= r.start+uint32(len(r.data)) {
			return r
		}
	}
	return nil
}

func (s *Sim) Tick() uint32 {
	s.tick++
	return s.tick
}

func (s *Sim) FlashErase(addr, size uint32) error {
	if s.EraseErr != nil {
		return s.EraseErr
	}
	r := s.find(addr, size)
	if r == nil {
		return errors.Errorf("erase outside flash: 0x%08X+%d", addr, size)
	}
	region := r.data[addr-r.start : addr-r.start+size]
	for i := range region {
		region[i] = s.sentinel
	}
	s.EraseCount++
	return nil
}

func (s *Sim) FlashWrite(addr uint32, data []byte) error {
	if addr%port.WordSize != 0 || len(data)%port.WordSize != 0 {
		return errors.Errorf("unaligned write: 0x%08X+%d", addr, len(data))
	}
	if s.WriteErr != nil {
		if s.SucceedWrites == 0 {
			return s.WriteErr
		}
		s.SucceedWrites--
	}
	r := s.find(addr, uint32(len(data)))
	if r == nil {
		return errors.Errorf("write outside flash: 0x%08X+%d", addr, len(data))
	}
	copy(r.data[addr-r.start:], data)
	s.WriteCount++
	return nil
}

func (s *Sim) FlashRead(addr uint32, buf []byte) error {
	r := s.find(addr, uint32(len(buf)))
	if r == nil {
		return errors.Errorf("read outside flash: 0x%08X+%d", addr, len(buf))
	}
	copy(buf, r.data[addr-r.start:])
	return nil
}

func (s *Sim) UARTWrite(data []byte) error {
	s.tx.Write(data)
	return nil
}

func (s *Sim) UARTRead(buf []byte) int {
	return s.rx.Get(buf)
}

func (s *Sim) JumpToApp(addr uint32) {
	s.JumpedTo = addr
}

func (s *Sim) SystemReset() {
	s.ResetCount++
}
