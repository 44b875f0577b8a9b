package util

import (
	"testing"

	"github.com/smartystreets/assertions"
)

func so(t *testing.T, actual interface{}, assert func(interface{}, ...interface{}) string, expected ...interface{}) {
	t.Helper()
	if ok, msg := assertions.So(actual, assert, expected...); !ok {
		t.Error(msg)
	}
}

func TestWriteReadUB4(t *testing.T) {
	buf := WriteUB4(nil, 0x01020304)
	so(t, buf, assertions.ShouldResemble, []byte{0x04, 0x03, 0x02, 0x01})

	cursor, v := ReadUB4(buf, 0)
	so(t, cursor, assertions.ShouldEqual, 4)
	so(t, v, assertions.ShouldEqual, uint32(0x01020304))
}

func TestWriteReadUB2AndUB8(t *testing.T) {
	buf := WriteUB2(nil, 0xBEEF)
	buf = WriteUB8(buf, 0x1122334455667788)

	cursor, v2 := ReadUB2(buf, 0)
	so(t, v2, assertions.ShouldEqual, uint16(0xBEEF))
	cursor, v8 := ReadUB8(buf, cursor)
	so(t, cursor, assertions.ShouldEqual, 10)
	so(t, v8, assertions.ShouldEqual, uint64(0x1122334455667788))
}

func TestPutGet(t *testing.T) {
	page := make([]byte, 32)
	PutUB2(page, 3, 513)
	PutUB4(page, 8, 0xCAFEBABE)
	PutUB8(page, 16, 1<<40+7)

	so(t, GetUB2(page, 3), assertions.ShouldEqual, uint16(513))
	so(t, GetUB4(page, 8), assertions.ShouldEqual, uint32(0xCAFEBABE))
	so(t, GetUB8(page, 16), assertions.ShouldEqual, uint64(1<<40+7))
}

func TestWriteWithUB4Length(t *testing.T) {
	buf := WriteWithUB4Length(nil, []byte("field0"))
	so(t, len(buf), assertions.ShouldEqual, 10)
	cursor, n := ReadUB4(buf, 0)
	_, name := ReadBytes(buf, cursor, int(n))
	so(t, string(name), assertions.ShouldEqual, "field0")
}

func TestZeroBytes(t *testing.T) {
	buf := []byte{1, 2, 3}
	ZeroBytes(buf)
	so(t, IsZero(buf), assertions.ShouldBeTrue)
}
