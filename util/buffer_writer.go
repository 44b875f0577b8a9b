package util

// Appending writers, little endian.

func WriteByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

func WriteBytes(buf []byte, from []byte) []byte {
	return append(buf, from...)
}

func WriteUB2(buf []byte, i uint16) []byte {
	return append(buf, byte(i), byte(i>>8))
}

func WriteUB4(buf []byte, i uint32) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16), byte(i>>24))
}

func WriteUB8(buf []byte, i uint64) []byte {
	buf = WriteUB4(buf, uint32(i))
	return WriteUB4(buf, uint32(i>>32))
}

// WriteWithUB4Length appends a uint32 length prefix followed by the bytes.
func WriteWithUB4Length(buf []byte, from []byte) []byte {
	buf = WriteUB4(buf, uint32(len(from)))
	return append(buf, from...)
}

// In-place setters for fixed page offsets.

func PutUB2(buf []byte, offset int, i uint16) {
	buf[offset] = byte(i)
	buf[offset+1] = byte(i >> 8)
}

func PutUB4(buf []byte, offset int, i uint32) {
	buf[offset] = byte(i)
	buf[offset+1] = byte(i >> 8)
	buf[offset+2] = byte(i >> 16)
	buf[offset+3] = byte(i >> 24)
}

func PutUB8(buf []byte, offset int, i uint64) {
	PutUB4(buf, offset, uint32(i))
	PutUB4(buf, offset+4, uint32(i>>32))
}

// ZeroBytes clears buf.
func ZeroBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
