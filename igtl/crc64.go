package igtl

// OpenIGTLink uses the ECMA-182 polynomial in its non-reflected form with a
// zero initial value, which hash/crc64 does not provide.
const crc64Poly = 0x42F0E1EBA9EA3693

var crc64Table = makeCRC64Table()

func makeCRC64Table() *[256]uint64 {
	t := new([256]uint64)

	for i := range t {
		crc := uint64(i) << 56

		for range 8 {
			if crc&(1<<63) != 0 {
				crc = crc<<1 ^ crc64Poly
			} else {
				crc <<= 1
			}
		}

		t[i] = crc
	}

	return t
}

// CRC64 returns the OpenIGTLink body checksum of b.
func CRC64(b []byte) uint64 {
	var crc uint64

	for _, c := range b {
		crc = crc64Table[byte(crc>>56)^c] ^ crc<<8
	}

	return crc
}
