// Package boot implements the resident update engine of the bootloader:
// frame synchronization over an unreliable byte stream, the receive state
// machine, the word-aligned streaming flash writer and the boot-time
// decision between staying resident and handing control to the
// application.
//
// The engine is driven by a single goroutine calling Poll on a fixed
// period. All hardware access goes through a port.Port implementation.
package boot

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/flagrec"
	"github.com/synthread/go-easyboot/port"
	"github.com/synthread/go-easyboot/protocol"
)

// State identifies where the engine is in the download sequence.
type State int

const (
	// StateIdle means no download is in progress.
	StateIdle State = iota
	// StateReceiving means data frames are being streamed into flash.
	StateReceiving
	// StateAwaitingFinish means all image bytes have arrived and the
	// engine is waiting for the finish frame to seal the record.
	StateAwaitingFinish
)

// Arch selects the application validity check variant.
type Arch int

const (
	// ArchCortexM validates a vector table: initial stack pointer in RAM,
	// odd (thumb) reset vector inside the application region.
	ArchCortexM Arch = iota
	// ArchRISCV validates only the entry address in the second word.
	ArchRISCV
)

// DefaultPacketMaxSize bounds a whole data frame including its fixed
// overhead.
const DefaultPacketMaxSize = 1024

// Config describes the flash layout and capabilities of the target.
type Config struct {
	// AppBase and AppSize delimit the application flash region.
	AppBase uint32
	AppSize uint32

	// FlagRegionBase and FlagRegionSize delimit the flash region holding
	// the persistent flag record. The whole region is erased on every
	// record write.
	FlagRegionBase uint32
	FlagRegionSize uint32

	// RAMRegions are the writable RAM ranges a Cortex-M initial stack
	// pointer may point into.
	RAMRegions []port.Region

	// EraseSentinel is the word value flash reads back after an erase.
	// Zero selects the usual all-ones pattern.
	EraseSentinel uint32

	// PacketMaxSize bounds a whole data frame. Zero selects
	// DefaultPacketMaxSize.
	PacketMaxSize int

	Arch Arch

	// FinishFrame selects whether a download must be sealed by a finish
	// frame carrying the new version and date. Targets without it reuse
	// the version and date already stored in the flag record.
	FinishFrame bool
}

// Bootloader holds the session context. It is exclusively owned by the
// goroutine calling Poll.
type Bootloader struct {
	p   port.Port
	cfg Config

	rxCache    []byte // linear parse window, capacity = PacketMaxSize
	payloadBuf []byte // scratch for the most recently extracted payload

	currentAddr uint32
	residue     [port.WordSize]byte
	residueLen  int

	rec flagrec.Record

	state          State
	downloadActive bool
	initialized    bool
}

// New creates a Bootloader for the given port. The config's application
// region must be set; other fields default sensibly.
func New(p port.Port, c *Config) (*Bootloader, error) {
	if p == nil {
		return nil, errors.New("port cannot be nil")
	}

	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.AppSize == 0 {
		return nil, errors.New("application region must be configured")
	}
	if cfg.PacketMaxSize <= protocol.DataFrameOverhead {
		cfg.PacketMaxSize = DefaultPacketMaxSize
	}
	if cfg.EraseSentinel == 0 {
		cfg.EraseSentinel = 0xFFFFFFFF
	}

	b := &Bootloader{
		p:          p,
		cfg:        cfg,
		rxCache:    make([]byte, 0, cfg.PacketMaxSize),
		payloadBuf: make([]byte, cfg.PacketMaxSize-protocol.DataFrameOverhead),
	}
	b.resetSession()
	return b, nil
}

// Init loads the flag record and applies the boot decision. When the
// record requests the application and the image checks out, it calls
// Port.JumpToApp, which only returns on a failed jump; in every other case
// the device stays resident and Init arms the polling loop.
func (b *Bootloader) Init() error {
	b.resetSession()

	rec, err := flagrec.Read(b.p, b.cfg.FlagRegionBase)
	if err != nil {
		return errors.Wrap(err, "could not read flag record")
	}
	b.rec = rec
	logrus.Infof("boot flag=0x%08X version=0x%08X date=0x%08X",
		rec.Flag, rec.Version, rec.Date)

	if b.shouldJump() {
		logrus.Info("application valid, jumping")
		b.p.JumpToApp(b.cfg.AppBase)
		logrus.Warn("jump returned, staying resident")
	}

	b.initialized = true
	logrus.Info("bootloader ready, waiting for data")
	return nil
}

// shouldJump applies the boot decision table: jump only when the flag
// explicitly requests the application and the image is structurally valid.
// An erased or unknown flag never jumps, even over a valid image.
func (b *Bootloader) shouldJump() bool {
	if b.rec.Flag == flagrec.FlagBootloader {
		logrus.Info("flag requests bootloader mode")
		return false
	}
	if !b.appValid() {
		logrus.Info("application image invalid, staying resident")
		return false
	}
	switch b.rec.Flag {
	case flagrec.FlagApp:
		return true
	case b.cfg.EraseSentinel:
		logrus.Info("flag record erased, staying resident")
		return false
	default:
		logrus.Warnf("unknown boot flag 0x%08X, application valid but not jumping", b.rec.Flag)
		return false
	}
}

// Poll drives one cycle of the update engine: drain pending UART bytes,
// extract frames and advance the state machine. Any session-fatal error
// aborts back to idle; the next download then restarts from the erase.
func (b *Bootloader) Poll() {
	if !b.initialized {
		return
	}

	b.pollUART()

	if b.cfg.FinishFrame && b.state == StateAwaitingFinish {
		version, date, ok := b.extractFinishFrame()
		if !ok {
			return
		}
		if err := b.handleFinish(version, date); err != nil {
			logrus.Errorf("finish frame handling failed: %v", err)
			b.resetSession()
		}
		return
	}

	for {
		remaining, n, ok := b.extractFrame()
		if !ok {
			return
		}
		if err := b.handlePayload(remaining, n); err != nil {
			logrus.Errorf("frame handling failed: %v", err)
			b.resetSession()
			return
		}
		if b.state == StateAwaitingFinish {
			// The finish frame may already be queued; leave it for the
			// finish parser on the next poll.
			return
		}
	}
}

// State returns the engine's position in the download sequence.
func (b *Bootloader) State() State {
	return b.state
}

// Record returns the in-memory mirror of the flag record.
func (b *Bootloader) Record() flagrec.Record {
	return b.rec
}

// resetSession clears all transient parse and write state. The initialized
// flag and the flag record mirror survive; partially written image bytes
// are simply abandoned and re-erased on the next download.
func (b *Bootloader) resetSession() {
	b.rxCache = b.rxCache[:0]
	b.currentAddr = b.cfg.AppBase
	b.residueLen = 0
	b.state = StateIdle
	b.downloadActive = false
}

func (b *Bootloader) pollUART() {
	space := cap(b.rxCache) - len(b.rxCache)
	if space == 0 {
		// Cache full; the parser must consume first.
		return
	}
	n := b.p.UARTRead(b.rxCache[len(b.rxCache) : len(b.rxCache)+space])
	if n > 0 {
		b.rxCache = b.rxCache[:len(b.rxCache)+n]
	}
}

// consume drops n bytes from the front of the parse window.
func (b *Bootloader) consume(n int) {
	if n >= len(b.rxCache) {
		b.rxCache = b.rxCache[:0]
		return
	}
	rest := copy(b.rxCache, b.rxCache[n:])
	b.rxCache = b.rxCache[:rest]
}
