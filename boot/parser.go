package boot

import (
	"encoding/binary"

	"github.com/synthread/go-easyboot/protocol"
)

// extractFrame scans the parse window for one complete, validated data
// frame. On success the payload sits in payloadBuf and the whole frame has
// been consumed. ok=false means no frame was found: either the window
// holds the prefix of a frame that is still arriving (nothing consumed) or
// only garbage, which has been discarded.
//
// Resync policy: a header mismatch drops one byte, so a header hiding
// inside garbage is always found; an implausible length, bad checksum or
// bad tail drops the two header bytes of the false candidate. Every loop
// iteration consumes at least one byte or returns.
func (b *Bootloader) extractFrame() (remaining uint32, payloadLen int, ok bool) {
	maxPayload := b.cfg.PacketMaxSize - protocol.DataFrameOverhead

	for len(b.rxCache) >= protocol.DataFrameOverhead {
		if b.rxCache[0] != protocol.Header0 || b.rxCache[1] != protocol.Header1 {
			b.consume(1)
			continue
		}

		remain := uint32(b.rxCache[2])<<16 | uint32(b.rxCache[3])<<8 | uint32(b.rxCache[4])
		n := int(b.rxCache[5])<<8 | int(b.rxCache[6])
		if n > maxPayload {
			// Header bytes that happened to appear in garbage.
			b.consume(2)
			continue
		}

		frameSize := protocol.DataFrameOverhead + n
		if len(b.rxCache) < frameSize {
			// Frame still arriving; wait for more bytes.
			return 0, 0, false
		}

		sumPos := 7 + n
		got := uint16(b.rxCache[sumPos])<<8 | uint16(b.rxCache[sumPos+1])
		want := protocol.Checksum16(b.rxCache[5:sumPos])
		if got != want ||
			b.rxCache[sumPos+2] != protocol.Tail0 ||
			b.rxCache[sumPos+3] != protocol.Tail1 {
			b.consume(2)
			continue
		}

		copy(b.payloadBuf, b.rxCache[7:sumPos])
		b.consume(frameSize)
		return remain, n, true
	}

	return 0, 0, false
}

// extractFinishFrame matches the fixed 14-byte finish frame and yields the
// version and date it carries. Same resync policy as extractFrame; the
// finish frame has no checksum, only its marker and tail bytes.
func (b *Bootloader) extractFinishFrame() (version, date uint32, ok bool) {
	for len(b.rxCache) >= protocol.FinishFrameLen {
		if b.rxCache[0] != protocol.Header0 || b.rxCache[1] != protocol.Header1 {
			b.consume(1)
			continue
		}

		if b.rxCache[10] != protocol.FinishMarker0 ||
			b.rxCache[11] != protocol.FinishMarker1 ||
			b.rxCache[12] != protocol.Tail0 ||
			b.rxCache[13] != protocol.Tail1 {
			b.consume(2)
			continue
		}

		version = binary.BigEndian.Uint32(b.rxCache[2:6])
		date = binary.BigEndian.Uint32(b.rxCache[6:10])
		b.consume(protocol.FinishFrameLen)
		return version, date, true
	}

	return 0, 0, false
}
