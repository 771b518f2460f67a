package dictionary

import (
	"bytes"

	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zstring"
)

type Header struct {
	n          uint8
	InputCodes []uint8
	length     uint8
	count      int16
}

type Dictionary struct {
	Header       Header
	core         *zcore.Core
	base         uint32
	entryBase    uint32
	keyLength    uint32
	sortedLookup bool
}

// ParseDictionary caches the header of the dictionary at baseAddress. The
// entries themselves stay in memory and are looked up on demand, so the same
// code serves the game dictionary and any user dictionary handed to the
// tokenise opcode.
func ParseDictionary(baseAddress uint32, core *zcore.Core) *Dictionary {
	numInputCodes := core.ReadByte(baseAddress)

	header := Header{
		n:          numInputCodes,
		InputCodes: core.ReadSlice(baseAddress+1, baseAddress+1+uint32(numInputCodes)),
		length:     core.ReadByte(baseAddress + 1 + uint32(numInputCodes)),
		count:      int16(core.ReadHalfWord(baseAddress + 2 + uint32(numInputCodes))),
	}

	keyLength := uint32(4)
	if core.Version > 3 {
		keyLength = 6
	}

	return &Dictionary{
		Header:       header,
		core:         core,
		base:         baseAddress,
		entryBase:    baseAddress + 4 + uint32(numInputCodes),
		keyLength:    keyLength,
		// A negative count marks a user dictionary with unsorted entries
		sortedLookup: header.count >= 0,
	}
}

func (d *Dictionary) entryCount() int {
	if d.Header.count < 0 {
		return int(-d.Header.count)
	}
	return int(d.Header.count)
}

func (d *Dictionary) entryKey(ix int) []uint8 {
	addr := d.entryBase + uint32(ix)*uint32(d.Header.length)
	return d.core.ReadSlice(addr, addr+d.keyLength)
}

// Find returns the byte address of the entry whose encoded key matches zstr,
// or 0 when the word isn't in the dictionary. Entries are stored sorted by
// key so the game dictionary is binary searched; user dictionaries flagged
// with a negative count get a linear scan.
func (d *Dictionary) Find(zstr []uint8) uint16 {
	key := zstr
	if uint32(len(key)) > d.keyLength {
		key = key[:d.keyLength]
	}

	if d.sortedLookup {
		lo, hi := 0, d.entryCount()-1
		for lo <= hi {
			mid := (lo + hi) / 2
			switch bytes.Compare(key, d.entryKey(mid)) {
			case 0:
				return uint16(d.entryBase + uint32(mid)*uint32(d.Header.length))
			case -1:
				hi = mid - 1
			default:
				lo = mid + 1
			}
		}
		return 0
	}

	for ix := 0; ix < d.entryCount(); ix++ {
		if bytes.Equal(key, d.entryKey(ix)) {
			return uint16(d.entryBase + uint32(ix)*uint32(d.Header.length))
		}
	}
	return 0
}

// FindWord encodes a token and looks it up in one step.
func (d *Dictionary) FindWord(word []uint8, alphabets *zstring.Alphabets) uint16 {
	return d.Find(zstring.Encode([]rune(string(word)), d.core.Version, alphabets))
}

// GetWords decodes every entry, used by debugging surfaces.
func (d *Dictionary) GetWords(alphabets *zstring.Alphabets) []string {
	words := make([]string, d.entryCount())
	for ix := range words {
		addr := d.entryBase + uint32(ix)*uint32(d.Header.length)
		words[ix], _ = zstring.Decode(d.core, addr, addr+d.keyLength, alphabets, false)
	}
	return words
}

// IsSeparator reports whether the dictionary declares b as a word separator.
func (d *Dictionary) IsSeparator(b uint8) bool {
	return bytes.IndexByte(d.Header.InputCodes, b) >= 0
}
