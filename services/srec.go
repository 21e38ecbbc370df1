package services

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseSrec decodes Motorola S-record text into an image. Data records of
// any address width (S1, S2, S3) are accepted; S7/S8/S9 set the execution
// start address. Record and byte counts (S5, S6) are validated when
// present.
func ParseSrec(text string) (*Image, error) {
	var (
		segments    []Segment
		start       *uint32
		dataRecords uint32
	)

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec, err := parseSrecRecord(line)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Err: err}
		}

		switch rec.kind {
		case 0:
			// Header record, ignored.
		case 1, 2, 3:
			dataRecords++
			segments = append(segments, Segment{Address: rec.address, Data: rec.data})
		case 5, 6:
			if rec.address != dataRecords {
				return nil, &ParseError{
					Line: i + 1,
					Err:  fmt.Errorf("%w: record count %d, saw %d data records", ErrInvalidRecord, rec.address, dataRecords),
				}
			}
		case 7, 8, 9:
			addr := rec.address
			start = &addr
		default:
			return nil, &ParseError{Line: i + 1, Err: fmt.Errorf("%w: type S%d", ErrInvalidRecord, rec.kind)}
		}
	}

	segments, err := normalizeSegments(segments)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrEmptyImage
	}
	return &Image{Segments: segments, Start: start}, nil
}

type srecRecord struct {
	kind    int
	address uint32
	data    []byte
}

// srecAddressWidth is the address size in bytes for a record type.
func srecAddressWidth(kind int) int {
	switch kind {
	case 2, 8:
		return 3
	case 3, 7:
		return 4
	case 5:
		return 2
	case 6:
		return 3
	default:
		return 2
	}
}

func parseSrecRecord(line string) (srecRecord, error) {
	var rec srecRecord
	if len(line) < 4 || (line[0] != 'S' && line[0] != 's') {
		return rec, fmt.Errorf("%w: missing S prefix", ErrInvalidRecord)
	}
	if line[1] < '0' || line[1] > '9' {
		return rec, fmt.Errorf("%w: bad record type %q", ErrInvalidRecord, line[1])
	}
	rec.kind = int(line[1] - '0')

	raw, err := hex.DecodeString(line[2:])
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if len(raw) < 1 || int(raw[0]) != len(raw)-1 {
		return rec, fmt.Errorf("%w: byte count mismatch", ErrInvalidRecord)
	}

	sum := byte(0)
	for _, b := range raw[:len(raw)-1] {
		sum += b
	}
	if ^sum != raw[len(raw)-1] {
		return rec, ErrChecksumMismatch
	}

	width := srecAddressWidth(rec.kind)
	body := raw[1 : len(raw)-1]
	if len(body) < width {
		return rec, fmt.Errorf("%w: truncated address", ErrInvalidRecord)
	}
	for _, b := range body[:width] {
		rec.address = rec.address<<8 | uint32(b)
	}
	rec.data = body[width:]
	return rec, nil
}
