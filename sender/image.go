package sender

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// LoadImage reads a firmware image from disk. Intel HEX files yield both
// the image bytes and the base address of the lowest segment, with gaps
// between segments filled with 0xFF; raw binaries return base 0.
func LoadImage(path string) ([]byte, uint32, error) {
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return loadIntelHex(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return nil, 0, errors.Errorf("%s is empty", path)
	}
	return data, 0, nil
}

func loadIntelHex(path string) ([]byte, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, 0, errors.Wrap(err, "could not parse hex file")
	}

	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return nil, 0, errors.New("hex file contains no data")
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Address < segs[j].Address })

	base := segs[0].Address
	image := make([]byte, 0)
	for _, seg := range segs {
		next := base + uint32(len(image))
		if seg.Address < next {
			return nil, 0, errors.New("hex segments overlap")
		}
		if gap := int(seg.Address - next); gap > 0 {
			image = append(image, bytes.Repeat([]byte{0xFF}, gap)...)
		}
		image = append(image, seg.Data...)
	}
	return image, base, nil
}
