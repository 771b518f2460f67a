package zstring

import (
	"slices"
	"strings"

	"github.com/bcorrigan/zmachine/zcore"
)

// Alphabets - a0/a1 hold the 26 characters for z-characters 6..31, a2 holds
// the 25 characters for z-characters 7..31 (z-character 6 in A2 is the ZSCII
// escape and is never table driven).
type Alphabets struct {
	a0 []rune
	a1 []rune
	a2 []rune
}

var defaultAlphabetsV1 = Alphabets{
	a0: []rune("abcdefghijklmnopqrstuvwxyz"),
	a1: []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
	a2: []rune("0123456789.,!?_#'\"/\\<-:()"),
}

var defaultAlphabetsV2 = Alphabets{
	a0: []rune("abcdefghijklmnopqrstuvwxyz"),
	a1: []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
	a2: []rune("\n0123456789.,!?_#'\"/\\-:()"),
}

// LoadAlphabets returns the alphabet tables for a story, honouring a custom
// table named by the header on v5+.
func LoadAlphabets(core *zcore.Core) *Alphabets {
	if core.Version == 1 {
		return &defaultAlphabetsV1
	}
	if core.Version < 5 || core.AlternativeCharSetBaseAddress == 0 {
		return &defaultAlphabetsV2
	}

	// The custom table is three rows of 26 ZSCII codes for z-characters
	// 6..31. Row A2's first code is the escape and its second is forced to
	// newline whatever the table says.
	base := uint32(core.AlternativeCharSetBaseAddress)
	row := func(n uint32) []rune {
		runes := make([]rune, 26)
		for i := uint32(0); i < 26; i++ {
			runes[i] = ZsciiToRune(uint16(core.ReadByte(base + n*26 + i)))
		}
		return runes
	}

	a2 := row(2)[1:]
	a2[0] = '\n'

	return &Alphabets{a0: row(0), a1: row(1), a2: a2}
}

type alphabet int

const (
	a0 alphabet = 0
	a1 alphabet = 1
	a2 alphabet = 2
)

// Decode converts the z-string starting at startPtr into text. Reading stops
// at the first word with the terminator bit set, or at endPtr when endPtr is
// non-zero (object short names and dictionary entries carry their length
// rather than relying on the terminator). The second return value is the
// number of bytes consumed.
//
// Decoding holds no state between calls so it is safe to re-enter, which
// abbreviation expansion relies on.
func Decode(core *zcore.Core, startPtr uint32, endPtr uint32, alphabets *Alphabets, abbrevAllowed bool) (string, uint32) {
	ptr := startPtr
	version := core.Version

	// First convert memory into a stream of 5 bit z-characters, terminating
	// at the appropriate time.
	var zchrStream []uint8
	for {
		if endPtr != 0 && ptr >= endPtr {
			break
		}
		if ptr+2 > core.MemoryLength() {
			break
		}

		halfWord := core.ReadHalfWord(ptr)
		ptr += 2

		zchrStream = append(zchrStream, uint8((halfWord>>10)&0b1_1111))
		zchrStream = append(zchrStream, uint8((halfWord>>5)&0b1_1111))
		zchrStream = append(zchrStream, uint8(halfWord&0b1_1111))

		if halfWord>>15 == 1 {
			break
		}
	}

	var out strings.Builder
	baseAlphabet := a0
	currentAlphabet := a0
	nextAlphabet := a0

	for i := 0; i < len(zchrStream); i++ {
		zchr := zchrStream[i]
		currentAlphabet = nextAlphabet
		nextAlphabet = baseAlphabet

		switch zchr {
		case 0: // SPACE in all versions
			out.WriteByte(' ')
		case 1: // new line in v1, abbreviations in v2+
			if version == 1 {
				out.WriteByte('\n')
			} else if i+1 < len(zchrStream) {
				out.WriteString(expandAbbreviation(core, alphabets, zchr, zchrStream[i+1], abbrevAllowed))
				i++
			}
		case 2, 3: // Shifts in v1-2, abbreviations in v3+
			if version >= 3 {
				if i+1 < len(zchrStream) {
					out.WriteString(expandAbbreviation(core, alphabets, zchr, zchrStream[i+1], abbrevAllowed))
					i++
				}
			} else {
				nextAlphabet = (currentAlphabet + alphabet(zchr) - 1) % 3
			}
		case 4, 5: // Shift locks in v1-2, single shifts in v3+
			if version >= 3 {
				nextAlphabet = alphabet(zchr - 3)
			} else {
				baseAlphabet = (baseAlphabet + alphabet(zchr) - 3) % 3
				nextAlphabet = baseAlphabet
			}
		default:
			if currentAlphabet == a2 && zchr == 6 {
				// 10 bit ZSCII escape built from the next two z-characters
				if i+2 < len(zchrStream) {
					zscii := uint16(zchrStream[i+1])<<5 | uint16(zchrStream[i+2])
					out.WriteRune(ZsciiToRune(zscii))
					i += 2
				}
			} else {
				switch currentAlphabet {
				case a0:
					out.WriteRune(alphabets.a0[zchr-6])
				case a1:
					out.WriteRune(alphabets.a1[zchr-6])
				case a2:
					out.WriteRune(alphabets.a2[zchr-7])
				}
			}
		}
	}

	return out.String(), ptr - startPtr
}

// Encode packs a token into the fixed-length dictionary key for the story
// version: 6 z-characters over 4 bytes on v1-3, 9 over 6 bytes on v4+.
// In theory this is the inverse of Decode although in practice strings can
// be constructed for which this isn't true.
func Encode(s []rune, version uint8, alphabets *Alphabets) []uint8 {
	zchrs := make([]uint8, 0)

	numZChrs := 6
	if version > 3 {
		numZChrs = 9
	}

	shiftA1 := uint8(2)
	shiftA2 := uint8(3)
	if version > 2 {
		shiftA1 = 4
		shiftA2 = 5
	}

	for _, chr := range s {
		if chr == ' ' { // SPACE is 0 in all versions, don't need to check alphabets
			zchrs = append(zchrs, 0)
			continue
		}

		if ix := slices.Index(alphabets.a0, chr); ix >= 0 {
			zchrs = append(zchrs, 6+uint8(ix))
		} else if ix := slices.Index(alphabets.a1, chr); ix >= 0 {
			zchrs = append(zchrs, shiftA1, 6+uint8(ix))
		} else if ix := slices.Index(alphabets.a2, chr); ix >= 0 {
			zchrs = append(zchrs, shiftA2, 7+uint8(ix))
		} else if zscii, ok := RuneToZscii(chr); ok {
			// ZSCII escape: shift to A2, z-character 6, then the 10 bit code
			zchrs = append(zchrs, shiftA2, 6, uint8(zscii>>5)&0b1_1111, uint8(zscii)&0b1_1111)
		} else {
			// Unrepresentable runes become pad characters
			zchrs = append(zchrs, 5)
		}
	}

	// Pad with 5s out to the fixed length then truncate to exactly match it
	for len(zchrs) < numZChrs {
		zchrs = append(zchrs, 5)
	}
	zchrs = zchrs[:numZChrs]

	bytes := make([]uint8, 0, numZChrs/3*2)
	for ix := 0; ix < numZChrs; ix += 3 {
		halfWord := uint16(zchrs[ix]&0b1_1111)<<10 | uint16(zchrs[ix+1]&0b1_1111)<<5 | uint16(zchrs[ix+2]&0b1_1111)
		if ix+3 == numZChrs {
			halfWord |= 0b1000_0000_0000_0000
		}

		bytes = append(bytes, uint8(halfWord>>8), uint8(halfWord))
	}

	return bytes
}
