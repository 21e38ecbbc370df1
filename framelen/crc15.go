package framelen

// CRC-15 as used by Classical CAN:
// width 15, poly 0x4599, init 0x0000, no reflection, no xor-out.

const crc15Poly = 0x4599

var crc15Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 7
		for b := 0; b < 8; b++ {
			if crc&0x4000 != 0 {
				crc = (crc << 1) ^ crc15Poly
			} else {
				crc <<= 1
			}
		}
		crc15Table[i] = crc & 0x7fff
	}
}

func crc15UpdateByte(crc uint16, data byte) uint16 {
	idx := byte(crc>>7) ^ data
	return (crc15Table[idx] ^ (crc << 8)) & 0x7fff
}

// crc15UpdateBits folds the topmost bits of data into the CRC.
func crc15UpdateBits(crc uint16, data byte, bits int) uint16 {
	for i := byte(0x80); bits > 0; bits-- {
		bit := crc&0x4000 != 0
		if data&i != 0 {
			bit = !bit
		}
		crc <<= 1
		if bit {
			crc ^= crc15Poly
		}
		i >>= 1
	}
	return crc & 0x7fff
}

// crc15Bitmap computes the CRC over the first n bits of the bitmap,
// table-driven over whole bytes with a bitwise tail.
func crc15Bitmap(bitmap []byte, n int) uint16 {
	var crc uint16
	for i := 0; i < n/8; i++ {
		crc = crc15UpdateByte(crc, bitmap[i])
	}
	if n%8 != 0 {
		crc = crc15UpdateBits(crc, bitmap[n/8], n%8)
	}
	return crc
}
