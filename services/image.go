// Package services holds the host-side helpers shared by the command line
// tools: loading firmware images from Intel HEX, S-record or raw binary
// files and slicing them into transfer-sized blocks.
package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidRecord    = errors.New("invalid record")
	ErrOverlap          = errors.New("overlapping segments")
	ErrEmptyImage       = errors.New("image contains no data")
)

// ParseError carries the line number of a malformed record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Segment is one contiguous run of image bytes.
type Segment struct {
	Address uint32
	Data    []byte
}

func (s Segment) End() uint32 { return s.Address + uint32(len(s.Data)) }

// Image is a normalised firmware image: segments sorted by address, merged
// when adjacent.
type Image struct {
	Segments []Segment

	// Start is the execution start address, when the file carried one.
	Start *uint32
}

// TotalBytes is the number of payload bytes across all segments.
func (im *Image) TotalBytes() int {
	n := 0
	for _, s := range im.Segments {
		n += len(s.Data)
	}
	return n
}

// SplitBlocks slices data into chunks of at most blockSize bytes.
func SplitBlocks(data []byte, blockSize int) [][]byte {
	if blockSize <= 0 {
		return nil
	}
	blocks := make([][]byte, 0, (len(data)+blockSize-1)/blockSize)
	for i := 0; i < len(data); i += blockSize {
		end := i + blockSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, data[i:end])
	}
	return blocks
}

// LoadFile reads a firmware image, picking the format from the file
// extension: .hex/.ihex parse as Intel HEX, .s19/.s28/.s37/.srec/.mot as
// S-records, anything else as raw binary at address zero.
func LoadFile(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return ParseIntelHex(raw)
	case ".s19", ".s28", ".s37", ".srec", ".mot":
		return ParseSrec(string(raw))
	default:
		if len(raw) == 0 {
			return nil, ErrEmptyImage
		}
		return &Image{Segments: []Segment{{Address: 0, Data: raw}}}, nil
	}
}

// ParseIntelHex decodes Intel HEX text into an image.
func ParseIntelHex(raw []byte) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var segments []Segment
	for _, seg := range mem.GetDataSegments() {
		segments = append(segments, Segment{Address: seg.Address, Data: seg.Data})
	}
	segments, err := normalizeSegments(segments)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrEmptyImage
	}

	im := &Image{Segments: segments}
	if addr, ok := mem.GetStartAddress(); ok {
		im.Start = &addr
	}
	return im, nil
}

// normalizeSegments sorts segments by address, merges adjacent ones and
// rejects overlaps.
func normalizeSegments(segments []Segment) ([]Segment, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	merged := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if len(seg.Data) == 0 {
			continue
		}
		seg.Data = append([]byte(nil), seg.Data...)

		if len(merged) == 0 {
			merged = append(merged, seg)
			continue
		}
		last := &merged[len(merged)-1]
		switch {
		case seg.Address > last.End():
			merged = append(merged, seg)
		case seg.Address == last.End():
			last.Data = append(last.Data, seg.Data...)
		default:
			return nil, fmt.Errorf("%w at 0x%08X", ErrOverlap, seg.Address)
		}
	}
	return merged, nil
}
