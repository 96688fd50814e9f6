package boot

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthread/go-easyboot/flagrec"
	"github.com/synthread/go-easyboot/port"
	"github.com/synthread/go-easyboot/protocol"
	"github.com/synthread/go-easyboot/simport"
)

const (
	testAppBase  uint32 = 0x08004000
	testAppSize  uint32 = 0x200
	testFlagBase uint32 = 0x0800F000
	testFlagSize uint32 = 0x100
)

// newTestEngine builds a bootloader over a simulated port with a small
// packet budget (64-byte frames, 53-byte payloads) so tests exercise
// chunking without large fixtures.
func newTestEngine(t *testing.T, mutate func(*Config)) (*Bootloader, *simport.Sim) {
	t.Helper()

	sim := simport.New(0xFF)
	sim.AddRegion(testAppBase, testAppSize)
	sim.AddRegion(testFlagBase, testFlagSize)

	cfg := &Config{
		AppBase:        testAppBase,
		AppSize:        testAppSize,
		FlagRegionBase: testFlagBase,
		FlagRegionSize: testFlagSize,
		RAMRegions:     []port.Region{{Start: 0x20000000, End: 0x2000FFFF}},
		PacketMaxSize:  64,
		FinishFrame:    true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	b, err := New(sim, cfg)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	return b, sim
}

// programVectors writes a Cortex-M style vector table head into the
// simulated application region.
func programVectors(t *testing.T, sim *simport.Sim, word0, word1 uint32) {
	t.Helper()
	var buf [2 * port.WordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], word0)
	binary.LittleEndian.PutUint32(buf[4:8], word1)
	require.NoError(t, sim.FlashWrite(testAppBase, buf[:]))
}

func mustDataFrame(t *testing.T, payload []byte, remaining uint32) []byte {
	t.Helper()
	frame, err := protocol.DataFrame(payload, remaining)
	require.NoError(t, err)
	return frame
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &Config{AppSize: 1})
	assert.Error(t, err)

	_, err = New(simport.New(0xFF), &Config{})
	assert.Error(t, err)

	_, err = New(simport.New(0xFF), nil)
	assert.Error(t, err)
}

func TestPollBeforeInit(t *testing.T) {
	sim := simport.New(0xFF)
	sim.AddRegion(testAppBase, testAppSize)
	sim.AddRegion(testFlagBase, testFlagSize)
	b, err := New(sim, &Config{AppBase: testAppBase, AppSize: testAppSize,
		FlagRegionBase: testFlagBase, FlagRegionSize: testFlagSize})
	require.NoError(t, err)

	sim.FeedUART(mustDataFrame(t, []byte{1, 2, 3, 4}, 0))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, 0, sim.EraseCount)
}

func TestSingleFrameDownload(t *testing.T) {
	b, sim := newTestEngine(t, nil)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	sim.FeedUART(mustDataFrame(t, payload, 0))
	b.Poll()

	assert.Equal(t, StateAwaitingFinish, b.State())
	assert.Equal(t, 1, sim.EraseCount)
	assert.Equal(t, payload, sim.Mem(testAppBase, len(payload)))
	assert.Equal(t, protocol.Ack, sim.TxBytes())
	assert.Equal(t, 0, sim.ResetCount)
}

func TestFinishSealsRecord(t *testing.T) {
	b, sim := newTestEngine(t, nil)

	sim.FeedUART(mustDataFrame(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0))
	b.Poll()
	require.Equal(t, StateAwaitingFinish, b.State())
	sim.ClearTx()

	sim.FeedUART(protocol.FinishFrame(2, 0x20250101))
	b.Poll()

	assert.Equal(t, protocol.Ack, sim.TxBytes())
	assert.Equal(t, 1, sim.ResetCount)
	assert.Equal(t, flagrec.Record{Flag: flagrec.FlagApp, Version: 2, Date: 0x20250101}, b.Record())

	rec, err := flagrec.Read(sim, testFlagBase)
	require.NoError(t, err)
	assert.Equal(t, b.Record(), rec)

	// A simulated reset returns; the engine is back to a clean session.
	assert.Equal(t, StateIdle, b.State())
}

func TestFinishWhileIdleIgnored(t *testing.T) {
	b, sim := newTestEngine(t, nil)

	sim.FeedUART(protocol.FinishFrame(2, 0x20250101))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, 0, sim.EraseCount)
	assert.Empty(t, sim.TxBytes())
	assert.Equal(t, 0, sim.ResetCount)
}

func TestWriteFailureAbortsSession(t *testing.T) {
	b, sim := newTestEngine(t, nil)
	sim.WriteErr = assert.AnError

	sim.FeedUART(mustDataFrame(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 8))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, 1, sim.EraseCount)
	assert.Empty(t, sim.TxBytes(), "failed frame must not be acknowledged")

	// The next download starts over from the erase and the region base.
	sim.WriteErr = nil
	payload := []byte{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}
	sim.FeedUART(mustDataFrame(t, payload, 0))
	b.Poll()

	assert.Equal(t, StateAwaitingFinish, b.State())
	assert.Equal(t, 2, sim.EraseCount)
	assert.Equal(t, payload, sim.Mem(testAppBase, len(payload)))
	assert.Equal(t, protocol.Ack, sim.TxBytes())
}

func TestMultiFrameDownload(t *testing.T) {
	b, sim := newTestEngine(t, nil)

	image := make([]byte, 101)
	for i := range image {
		image[i] = byte(i + 1)
	}

	const chunk = 7 // deliberately unaligned to exercise the residue path
	frames := 0
	for off := 0; off < len(image); off += chunk {
		end := off + chunk
		if end > len(image) {
			end = len(image)
		}
		sim.FeedUART(mustDataFrame(t, image[off:end], uint32(len(image)-end)))
		b.Poll()
		frames++
	}

	assert.Equal(t, StateAwaitingFinish, b.State())
	assert.Equal(t, 1, sim.EraseCount)
	assert.Equal(t, bytes.Repeat(protocol.Ack, frames), sim.TxBytes())

	// Image bytes verbatim, final partial word padded with the erase value.
	assert.Equal(t, image, sim.Mem(testAppBase, len(image)))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, sim.Mem(testAppBase+101, 3))

	sim.ClearTx()
	sim.FeedUART(protocol.FinishFrame(5, 0x20250830))
	b.Poll()

	assert.Equal(t, flagrec.Record{Flag: flagrec.FlagApp, Version: 5, Date: 0x20250830}, b.Record())
	assert.Equal(t, 1, sim.ResetCount)
}

func TestRangeOverflowRejected(t *testing.T) {
	b, sim := newTestEngine(t, func(c *Config) {
		c.AppSize = 16
	})

	sim.FeedUART(mustDataFrame(t, make([]byte, 20), 0))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Empty(t, sim.TxBytes())
	assert.Equal(t, 0, sim.WriteCount)
}

func TestRangeOverflowCountsResidue(t *testing.T) {
	b, sim := newTestEngine(t, func(c *Config) {
		c.AppSize = 8
	})

	// 6 bytes leaves a 2-byte residue; 3 more would need 12 bytes total.
	sim.FeedUART(mustDataFrame(t, []byte{1, 2, 3, 4, 5, 6}, 3))
	b.Poll()
	require.Equal(t, StateReceiving, b.State())

	sim.ClearTx()
	sim.FeedUART(mustDataFrame(t, []byte{7, 8, 9}, 0))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Empty(t, sim.TxBytes())
}

func TestNoFinishFrameVariant(t *testing.T) {
	sim := simport.New(0xFF)
	sim.AddRegion(testAppBase, testAppSize)
	sim.AddRegion(testFlagBase, testFlagSize)

	// The record seeded by the trigger exchange carries version and date.
	seed := flagrec.Record{Flag: flagrec.FlagBootloader, Version: 7, Date: 0x20240601}
	require.NoError(t, flagrec.Write(sim, testFlagBase, testFlagSize, seed))

	b, err := New(sim, &Config{
		AppBase:        testAppBase,
		AppSize:        testAppSize,
		FlagRegionBase: testFlagBase,
		FlagRegionSize: testFlagSize,
		PacketMaxSize:  64,
		FinishFrame:    false,
	})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	sim.ClearTx()

	payload := []byte{0xCA, 0xFE, 0xF0, 0x0D}
	sim.FeedUART(mustDataFrame(t, payload, 0))
	b.Poll()

	// Sealed immediately with the seeded version and date.
	assert.Equal(t, flagrec.Record{Flag: flagrec.FlagApp, Version: 7, Date: 0x20240601}, b.Record())
	assert.Equal(t, payload, sim.Mem(testAppBase, len(payload)))
	assert.Equal(t, protocol.Ack, sim.TxBytes())
	assert.Equal(t, 1, sim.ResetCount)
	assert.Equal(t, StateIdle, b.State())
}

func TestFlagWriteFailureAbortsToIdle(t *testing.T) {
	b, sim := newTestEngine(t, nil)

	sim.FeedUART(mustDataFrame(t, []byte{1, 2, 3, 4}, 0))
	b.Poll()
	require.Equal(t, StateAwaitingFinish, b.State())
	sim.ClearTx()

	sim.EraseErr = assert.AnError
	sim.FeedUART(protocol.FinishFrame(2, 0x20250101))
	b.Poll()

	assert.Equal(t, StateIdle, b.State())
	assert.Empty(t, sim.TxBytes())
	assert.Equal(t, 0, sim.ResetCount)
}

func TestBootDecisionTable(t *testing.T) {
	const (
		validStack = 0x20001000
		validReset = testAppBase + 0x41 // odd: thumb mode
	)

	cases := []struct {
		name     string
		flag     uint32
		writeRec bool
		validApp bool
		wantJump bool
	}{
		{name: "app flag and valid image", flag: flagrec.FlagApp, writeRec: true, validApp: true, wantJump: true},
		{name: "app flag but invalid image", flag: flagrec.FlagApp, writeRec: true, validApp: false, wantJump: false},
		{name: "bootloader flag over valid image", flag: flagrec.FlagBootloader, writeRec: true, validApp: true, wantJump: false},
		{name: "erased flag over valid image", writeRec: false, validApp: true, wantJump: false},
		{name: "unknown flag over valid image", flag: 0xDEAD, writeRec: true, validApp: true, wantJump: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := simport.New(0xFF)
			sim.AddRegion(testAppBase, testAppSize)
			sim.AddRegion(testFlagBase, testFlagSize)

			if tc.validApp {
				programVectors(t, sim, validStack, validReset)
			}
			if tc.writeRec {
				rec := flagrec.Record{Flag: tc.flag, Version: 1, Date: 0x20250101}
				require.NoError(t, flagrec.Write(sim, testFlagBase, testFlagSize, rec))
			}

			b, err := New(sim, &Config{
				AppBase:        testAppBase,
				AppSize:        testAppSize,
				FlagRegionBase: testFlagBase,
				FlagRegionSize: testFlagSize,
				RAMRegions:     []port.Region{{Start: 0x20000000, End: 0x2000FFFF}},
			})
			require.NoError(t, err)
			require.NoError(t, b.Init())

			if tc.wantJump {
				assert.Equal(t, testAppBase, sim.JumpedTo)
			} else {
				assert.Zero(t, sim.JumpedTo)
			}
		})
	}
}
