package util

// Little-endian cursor readers. Each returns the advanced cursor first, the
// decoded value second, so calls chain as `cursor, v = ReadUB4(buf, cursor)`.

func ReadBytes(buff []byte, cursor int, length int) (int, []byte) {
	if length <= 0 {
		return cursor, nil
	}
	return cursor + length, buff[cursor : cursor+length]
}

func ReadByte(buff []byte, cursor int) (int, byte) {
	return cursor + 1, buff[cursor]
}

func ReadUB2(buff []byte, cursor int) (int, uint16) {
	i := uint16(buff[cursor])
	i |= uint16(buff[cursor+1]) << 8
	return cursor + 2, i
}

func ReadUB4(buff []byte, cursor int) (int, uint32) {
	i := uint32(buff[cursor])
	i |= uint32(buff[cursor+1]) << 8
	i |= uint32(buff[cursor+2]) << 16
	i |= uint32(buff[cursor+3]) << 24
	return cursor + 4, i
}

func ReadUB8(buff []byte, cursor int) (int, uint64) {
	_, lo := ReadUB4(buff, cursor)
	_, hi := ReadUB4(buff, cursor+4)
	return cursor + 8, uint64(lo) | uint64(hi)<<32
}

// GetUB2 reads a little-endian uint16 at a fixed offset.
func GetUB2(buff []byte, offset int) uint16 {
	_, v := ReadUB2(buff, offset)
	return v
}

// GetUB4 reads a little-endian uint32 at a fixed offset.
func GetUB4(buff []byte, offset int) uint32 {
	_, v := ReadUB4(buff, offset)
	return v
}

// GetUB8 reads a little-endian uint64 at a fixed offset.
func GetUB8(buff []byte, offset int) uint64 {
	_, v := ReadUB8(buff, offset)
	return v
}
