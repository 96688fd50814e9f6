// Package port defines the hardware abstraction consumed by the bootloader
// core and the application-side agent. Implementations provide the flash,
// UART and reset primitives of a particular microcontroller family; the
// protocol engines above never touch hardware directly.
package port

// WordSize is the flash program granularity in bytes. Every FlashWrite must
// start at a word-aligned address and cover a whole number of words.
const WordSize = 4

// Port is the set of primitives the protocol engines drive.
//
// FlashErase and FlashWrite are synchronous and may monopolize the CPU for
// their duration. UARTWrite blocks until the bytes are on the wire.
// UARTRead must never block and returns 0 when no bytes are pending.
// JumpToApp and SystemReset do not return on success; a return from
// JumpToApp means the jump failed.
type Port interface {
	Tick() uint32
	FlashErase(addr, size uint32) error
	FlashWrite(addr uint32, data []byte) error
	FlashRead(addr uint32, buf []byte) error
	UARTWrite(data []byte) error
	UARTRead(buf []byte) int
	JumpToApp(addr uint32)
	SystemReset()
}

// Region is an inclusive address range.
type Region struct {
	Start uint32
	End   uint32
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}
