package paycode

// checksum считает CRC16-CCITT (полином 0x1021, старт 0xFFFF, MSB-first,
// без финального XOR) — контрольную сумму платёжного кода.
func checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
