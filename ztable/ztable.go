package ztable

import (
	"strings"

	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zstring"
)

// PrintTable renders a rectangle of ZSCII text stored row-major at baddr,
// with skip bytes between the rows. Rows after the first start on a new
// output line.
func PrintTable(core *zcore.Core, baddr uint32, width uint16, height uint16, skip uint16) string {
	s := strings.Builder{}
	ptr := baddr

	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}

		for col := uint16(0); col < width; col++ {
			s.WriteRune(zstring.ZsciiToRune(uint16(core.ReadByte(ptr))))
			ptr++
		}

		ptr += uint32(skip)
	}

	return s.String()
}

// ScanTable searches length fields of fieldSize bytes for test, comparing
// the leading word or byte of each field as form's top bit directs. Returns
// the address of the match or 0.
func ScanTable(core *zcore.Core, test uint16, baddr uint32, length uint16, form uint16) uint32 {
	ptr := baddr
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0 // A zero field length would never advance
	}

	for i := uint16(0); i < length; i++ {
		if checkWord {
			if core.ReadHalfWord(ptr) == test {
				return ptr
			}
		} else {
			// Note the widening of the memory byte here: the test value can
			// be larger and should rightly not be found
			if uint16(core.ReadByte(ptr)) == test {
				return ptr
			}
		}

		ptr += uint32(fieldSize)
	}

	return 0
}

// CopyTable implements the copy_table opcode's three behaviours: zero the
// first table when second is 0, copy forwards carefully when size is
// positive, and copy permitting corruption when the story asks for it with a
// negative size.
func CopyTable(core *zcore.Core, first uint16, second uint16, size int16) {
	sizeAbs := uint32(size)
	if size < 0 {
		sizeAbs = uint32(-size)
	}

	switch {
	case second == 0: // special case used to zero a table
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(first)+i, 0)
		}

	case size >= 0: // Use original values of first table, don't allow mid-copy corruption
		tmp := make([]uint8, sizeAbs)
		copy(tmp, core.ReadSlice(uint32(first), uint32(first)+sizeAbs))
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(second)+i, tmp[i])
		}

	default: // Allow corruption of the source table as the copy occurs
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(second)+i, core.ReadByte(uint32(first)+i))
		}
	}
}
