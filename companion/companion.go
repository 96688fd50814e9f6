// Package companion implements the application-side half of the update
// protocol: a small command/response exchange that reports the installed
// version and date and, on a trigger-update command, arms the bootloader
// and reboots. It shares the port and flag-record abstractions with the
// bootloader core but has no streaming writer and no checksummed frames.
package companion

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/go-easyboot/flagrec"
	"github.com/synthread/go-easyboot/port"
	"github.com/synthread/go-easyboot/protocol"
)

type command int

const (
	cmdNone command = iota
	cmdQueryVersion
	cmdQueryDate
	cmdTriggerUpdate
)

// Config describes the flag record location shared with the bootloader.
type Config struct {
	FlagRegionBase uint32
	FlagRegionSize uint32
}

// Agent polls the UART for command frames from the host tool. Like the
// bootloader core it is exclusively owned by a single polling goroutine.
type Agent struct {
	p   port.Port
	cfg Config

	rxCache     []byte
	rec         flagrec.Record
	initialized bool
}

// New creates an Agent for the given port.
func New(p port.Port, c *Config) (*Agent, error) {
	if p == nil {
		return nil, errors.New("port cannot be nil")
	}
	var cfg Config
	if c != nil {
		cfg = *c
	}
	return &Agent{
		p:       p,
		cfg:     cfg,
		rxCache: make([]byte, 0, 2*protocol.TriggerFrameLen),
	}, nil
}

// Init loads the flag record so version and date queries can be answered.
func (a *Agent) Init() error {
	rec, err := flagrec.Read(a.p, a.cfg.FlagRegionBase)
	if err != nil {
		return errors.Wrap(err, "could not read flag record")
	}
	a.rec = rec
	logrus.Infof("app version=0x%08X date=0x%08X", rec.Version, rec.Date)
	a.initialized = true
	return nil
}

// Record returns the in-memory mirror of the flag record.
func (a *Agent) Record() flagrec.Record {
	return a.rec
}

// Poll drains the UART and handles at most one command.
func (a *Agent) Poll() {
	if !a.initialized {
		return
	}

	a.pollUART()

	cmd, version, date := a.nextCommand()
	switch cmd {
	case cmdQueryVersion:
		a.handleQueryVersion()
	case cmdQueryDate:
		a.handleQueryDate()
	case cmdTriggerUpdate:
		a.handleTrigger(version, date)
	case cmdNone:
	}
}

func (a *Agent) pollUART() {
	space := cap(a.rxCache) - len(a.rxCache)
	if space == 0 {
		return
	}
	n := a.p.UARTRead(a.rxCache[len(a.rxCache) : len(a.rxCache)+space])
	if n > 0 {
		a.rxCache = a.rxCache[:len(a.rxCache)+n]
	}
}

func (a *Agent) consume(n int) {
	if n >= len(a.rxCache) {
		a.rxCache = a.rxCache[:0]
		return
	}
	rest := copy(a.rxCache, a.rxCache[n:])
	a.rxCache = a.rxCache[:rest]
}

// nextCommand scans the parse window for one command frame, discarding
// garbage a byte or two at a time. A matched header whose command bytes
// have not fully arrived yet is left in place for the next poll.
func (a *Agent) nextCommand() (cmd command, version, date uint32) {
	for len(a.rxCache) >= protocol.CommandFrameLen {
		if a.rxCache[0] != protocol.Header0 || a.rxCache[1] != protocol.Header1 {
			a.consume(1)
			continue
		}

		if bytes.Equal(a.rxCache[:protocol.CommandFrameLen], protocol.QueryVersion) {
			a.consume(protocol.CommandFrameLen)
			return cmdQueryVersion, 0, 0
		}
		if bytes.Equal(a.rxCache[:protocol.CommandFrameLen], protocol.QueryDate) {
			a.consume(protocol.CommandFrameLen)
			return cmdQueryDate, 0, 0
		}

		if len(a.rxCache) < protocol.TriggerFrameLen {
			// Could still be a trigger frame in flight.
			return cmdNone, 0, 0
		}
		if a.rxCache[10] == protocol.TriggerMarker0 &&
			a.rxCache[11] == protocol.TriggerMarker1 &&
			a.rxCache[12] == protocol.Tail0 &&
			a.rxCache[13] == protocol.Tail1 {
			version = binary.BigEndian.Uint32(a.rxCache[2:6])
			date = binary.BigEndian.Uint32(a.rxCache[6:10])
			a.consume(protocol.TriggerFrameLen)
			return cmdTriggerUpdate, version, date
		}

		// Header matched but no command did; skip the header bytes.
		a.consume(2)
	}

	return cmdNone, 0, 0
}

func (a *Agent) handleQueryVersion() {
	logrus.Info("query version command received")
	reply := fmt.Sprintf("version:%d\r\n", a.rec.Version)
	if err := a.p.UARTWrite([]byte(reply)); err != nil {
		logrus.Errorf("version reply failed: %v", err)
	}
}

func (a *Agent) handleQueryDate() {
	logrus.Info("query date command received")
	year, month, day := protocol.UnpackDate(a.rec.Date)
	reply := fmt.Sprintf("%04d-%02d-%02d\r\n", year, month, day)
	if err := a.p.UARTWrite([]byte(reply)); err != nil {
		logrus.Errorf("date reply failed: %v", err)
	}
}

// handleTrigger arms the bootloader for a new download. An offer matching
// the installed version is ignored; otherwise the agent acknowledges,
// stores the offered version and date with the bootloader flag, and
// reboots into the bootloader.
func (a *Agent) handleTrigger(version, date uint32) {
	logrus.Infof("trigger update: version=0x%08X date=0x%08X", version, date)

	if version == a.rec.Version {
		logrus.Info("version unchanged, ignoring update trigger")
		return
	}

	if err := a.p.UARTWrite(protocol.Ack); err != nil {
		logrus.Errorf("ack send failed: %v", err)
		return
	}

	rec := flagrec.Record{Flag: flagrec.FlagBootloader, Version: version, Date: date}
	if err := flagrec.Write(a.p, a.cfg.FlagRegionBase, a.cfg.FlagRegionSize, rec); err != nil {
		logrus.Errorf("could not write flag record: %v", err)
		return
	}
	a.rec = rec

	logrus.Info("flag set to bootloader, resetting")
	a.p.SystemReset()
}
