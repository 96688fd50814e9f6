package boot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppValidCortexM(t *testing.T) {
	const (
		goodStack = 0x20001000
		goodReset = testAppBase + 0x41
	)

	cases := []struct {
		name  string
		stack uint32
		reset uint32
		want  bool
	}{
		{name: "valid vector table", stack: goodStack, reset: goodReset, want: true},
		{name: "stack outside ram", stack: 0x10000000, reset: goodReset, want: false},
		{name: "reset outside app region", stack: goodStack, reset: testAppBase + testAppSize + 1, want: false},
		{name: "reset not thumb", stack: goodStack, reset: testAppBase + 0x40, want: false},
		{name: "reset at region end", stack: goodStack, reset: testAppBase + testAppSize - 1, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, sim := newTestEngine(t, nil)
			programVectors(t, sim, tc.stack, tc.reset)
			assert.Equal(t, tc.want, b.appValid())
		})
	}
}

func TestAppValidCortexMErased(t *testing.T) {
	b, _ := newTestEngine(t, nil)
	assert.False(t, b.appValid(), "erased region must never validate")
}

func TestAppValidRISCV(t *testing.T) {
	cases := []struct {
		name  string
		word0 uint32
		entry uint32
		want  bool
	}{
		{name: "valid entry", word0: 0x00000013, entry: testAppBase + 0x100, want: true},
		{name: "entry misaligned", word0: 0x00000013, entry: testAppBase + 0x101, want: false},
		{name: "entry outside app region", word0: 0x00000013, entry: testAppBase + testAppSize + 4, want: false},
		{name: "erased first word", word0: 0xFFFFFFFF, entry: testAppBase + 0x100, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, sim := newTestEngine(t, func(c *Config) {
				c.Arch = ArchRISCV
			})
			programVectors(t, sim, tc.word0, tc.entry)
			assert.Equal(t, tc.want, b.appValid())
		})
	}
}

func TestAlignHelpers(t *testing.T) {
	assert.Equal(t, uint32(0), alignUp(uint32(0), uint32(4)))
	assert.Equal(t, uint32(4), alignUp(uint32(1), uint32(4)))
	assert.Equal(t, uint32(4), alignUp(uint32(4), uint32(4)))
	assert.Equal(t, uint32(8), alignUp(uint32(5), uint32(4)))

	assert.Equal(t, uint32(0), alignDown(uint32(3), uint32(4)))
	assert.Equal(t, uint32(4), alignDown(uint32(7), uint32(4)))
	assert.Equal(t, uint32(8), alignDown(uint32(8), uint32(4)))
}
