package util

import (
	"testing"

	"github.com/smartystreets/assertions"
)

func TestPageChecksum(t *testing.T) {
	page := make([]byte, 64)
	so(t, VerifyPageChecksum(page), assertions.ShouldBeTrue)

	page[20] = 7
	so(t, VerifyPageChecksum(page), assertions.ShouldBeFalse)

	StampPageChecksum(page)
	so(t, GetUB8(page, 0), assertions.ShouldNotEqual, uint64(0))
	so(t, VerifyPageChecksum(page), assertions.ShouldBeTrue)

	page[40] ^= 0xFF
	so(t, VerifyPageChecksum(page), assertions.ShouldBeFalse)
}

func TestPathExists(t *testing.T) {
	ok, err := PathExists(t.TempDir())
	so(t, err, assertions.ShouldBeNil)
	so(t, ok, assertions.ShouldBeTrue)

	ok, err = PathExists(t.TempDir() + "/missing")
	so(t, err, assertions.ShouldBeNil)
	so(t, ok, assertions.ShouldBeFalse)
}
