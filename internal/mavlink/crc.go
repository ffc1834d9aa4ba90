package mavlink

const crcInit uint16 = 0xFFFF

// crcAccumulate folds one byte into an X.25 checksum.
func crcAccumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xFF)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

func crcCalculate(data []byte, crc uint16) uint16 {
	for _, b := range data {
		crc = crcAccumulate(b, crc)
	}
	return crc
}
