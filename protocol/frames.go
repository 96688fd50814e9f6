// Package protocol implements the bit-exact wire format shared by the
// resident bootloader, the application-side agent and the host uploader.
//
// Every frame is delimited by the header bytes 55 AA and the tail bytes
// 55 55. Data frames carry a big-endian 24-bit count of image bytes still
// to come after the frame, a 16-bit payload length, the payload and a
// 16-bit additive checksum over the length field and payload. The fixed
// command frames (finish, trigger-update, version/date queries, ACK) have
// no checksum.
package protocol

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Frame delimiters.
const (
	Header0 = 0x55
	Header1 = 0xAA
	Tail0   = 0x55
	Tail1   = 0x55
)

// DataFrameOverhead is the size of a data frame with an empty payload:
// 2 header + 3 remaining + 2 length + 2 checksum + 2 tail bytes.
const DataFrameOverhead = 11

// MaxRemaining is the largest value the 24-bit remaining-bytes field holds.
const MaxRemaining = 0xFFFFFF

// Finish frame: 55 AA [version 4B] [date 4B] FF FD 55 55.
const (
	FinishFrameLen = 14
	FinishMarker0  = 0xFF
	FinishMarker1  = 0xFD
)

// Trigger-update frame sent to the running application:
// 55 AA [version 4B] [date 4B] FF EE 55 55.
const (
	TriggerFrameLen = 14
	TriggerMarker0  = 0xFF
	TriggerMarker1  = 0xEE
)

// CommandFrameLen is the size of the fixed 6-byte command frames.
const CommandFrameLen = 6

// Fixed frames. Treat as read-only.
var (
	// Ack is sent by the device after every accepted data frame and after
	// the finish and trigger-update frames.
	Ack = []byte{0x55, 0xAA, 0xFF, 0xFE, 0x55, 0x55}

	// QueryVersion asks the running application for its version.
	QueryVersion = []byte{0x55, 0xAA, 0xFF, 0xDD, 0x55, 0x55}

	// QueryDate asks the running application for its update date.
	QueryDate = []byte{0x55, 0xAA, 0xFF, 0xCC, 0x55, 0x55}
)

// Checksum16 sums data modulo 2^16. This is the protocol's frame check: a
// plain additive sum, not a CRC, so many multi-byte corruption patterns
// cancel out. Kept as-is for wire compatibility.
func Checksum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// DataFrame builds a data frame around payload. remaining is the number of
// image bytes still to come after this frame; zero marks the last frame.
func DataFrame(payload []byte, remaining uint32) ([]byte, error) {
	if remaining > MaxRemaining {
		return nil, errors.Errorf("remaining %d exceeds the 24-bit field", remaining)
	}
	if len(payload) > 0xFFFF {
		return nil, errors.Errorf("payload %d exceeds the 16-bit length field", len(payload))
	}

	frame := make([]byte, 0, DataFrameOverhead+len(payload))
	frame = append(frame, Header0, Header1)
	frame = append(frame, byte(remaining>>16), byte(remaining>>8), byte(remaining))
	frame = append(frame, byte(len(payload)>>8), byte(len(payload)))
	frame = append(frame, payload...)
	sum := Checksum16(frame[5:])
	frame = append(frame, byte(sum>>8), byte(sum))
	frame = append(frame, Tail0, Tail1)
	return frame, nil
}

// FinishFrame builds the 14-byte frame that seals a download with the new
// version and date.
func FinishFrame(version, date uint32) []byte {
	return markerFrame(version, date, FinishMarker0, FinishMarker1)
}

// TriggerFrame builds the 14-byte frame that asks the running application
// to reboot into the bootloader for an update to version/date.
func TriggerFrame(version, date uint32) []byte {
	return markerFrame(version, date, TriggerMarker0, TriggerMarker1)
}

func markerFrame(version, date uint32, m0, m1 byte) []byte {
	frame := make([]byte, FinishFrameLen)
	frame[0], frame[1] = Header0, Header1
	binary.BigEndian.PutUint32(frame[2:6], version)
	binary.BigEndian.PutUint32(frame[6:10], date)
	frame[10], frame[11] = m0, m1
	frame[12], frame[13] = Tail0, Tail1
	return frame
}

// PackDate encodes a calendar date so that the hex digits of the result
// read as YYYYMMDD, e.g. 2025-12-01 becomes 0x20251201.
func PackDate(t time.Time) uint32 {
	y, m, d := t.Date()
	return bcd(uint32(y), 4)<<16 | bcd(uint32(m), 2)<<8 | bcd(uint32(d), 2)
}

// UnpackDate is the inverse of PackDate. Field values outside the decimal
// digit range decode to whatever their nibbles spell; callers that care
// should range-check the result.
func UnpackDate(date uint32) (year, month, day int) {
	return unbcd(date>>16, 4), unbcd(date>>8&0xFF, 2), unbcd(date&0xFF, 2)
}

func bcd(v uint32, digits int) uint32 {
	var out uint32
	for i := 0; i < digits; i++ {
		out |= (v % 10) << (4 * i)
		v /= 10
	}
	return out
}

func unbcd(v uint32, digits int) int {
	out := 0
	mul := 1
	for i := 0; i < digits; i++ {
		out += int(v>>(4*i)&0xF) * mul
		mul *= 10
	}
	return out
}
