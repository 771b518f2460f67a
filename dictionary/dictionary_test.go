package dictionary_test

import (
	"encoding/binary"
	"testing"

	"github.com/bcorrigan/zmachine/dictionary"
	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zstring"
)

// buildDictionaryImage writes a two entry v3 dictionary at 0x300 with ','
// as the only extra separator. Entries are 7 bytes (4 byte key + 3 data)
// and sorted by key: "look" then "north".
func buildDictionaryImage(count int16) []uint8 {
	mem := make([]uint8, 0x800)
	mem[0x00] = 3
	binary.BigEndian.PutUint16(mem[0x04:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x06:], 0x0500)
	binary.BigEndian.PutUint16(mem[0x08:], 0x0300)
	binary.BigEndian.PutUint16(mem[0x0a:], 0x0200)
	binary.BigEndian.PutUint16(mem[0x0c:], 0x0100)
	binary.BigEndian.PutUint16(mem[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x18:], 0x0080)

	mem[0x300] = 1   // one separator
	mem[0x301] = ',' // the separator
	mem[0x302] = 7   // entry length
	binary.BigEndian.PutUint16(mem[0x303:], uint16(count))

	copy(mem[0x305:], []uint8{0x46, 0x94, 0xc0, 0xa5}) // "look"
	copy(mem[0x30c:], []uint8{0x4e, 0x97, 0xe5, 0xa5}) // "north"

	return mem
}

func loadDictionary(t *testing.T, count int16) (*dictionary.Dictionary, *zstring.Alphabets) {
	t.Helper()
	core, err := zcore.LoadCore(buildDictionaryImage(count))
	if err != nil {
		t.Fatal(err)
	}
	return dictionary.ParseDictionary(0x300, &core), zstring.LoadAlphabets(&core)
}

func TestFind(t *testing.T) {
	dict, alphabets := loadDictionary(t, 2)

	if addr := dict.FindWord([]uint8("look"), alphabets); addr != 0x305 {
		t.Errorf("look found at %x, want 0x305", addr)
	}
	if addr := dict.FindWord([]uint8("north"), alphabets); addr != 0x30c {
		t.Errorf("north found at %x, want 0x30c", addr)
	}
	if addr := dict.FindWord([]uint8("xyzzy"), alphabets); addr != 0 {
		t.Errorf("xyzzy found at %x, want 0", addr)
	}
}

// A negative entry count marks an unsorted user dictionary which is scanned
// linearly.
func TestFindUnsortedDictionary(t *testing.T) {
	dict, alphabets := loadDictionary(t, -2)

	if addr := dict.FindWord([]uint8("north"), alphabets); addr != 0x30c {
		t.Errorf("north found at %x, want 0x30c", addr)
	}
	if addr := dict.FindWord([]uint8("grue"), alphabets); addr != 0 {
		t.Errorf("grue found at %x, want 0", addr)
	}
}

func TestSeparators(t *testing.T) {
	dict, _ := loadDictionary(t, 2)

	if !dict.IsSeparator(',') {
		t.Error("comma should be a separator")
	}
	if dict.IsSeparator('.') || dict.IsSeparator(' ') {
		t.Error("only declared separators count")
	}
}

func TestGetWords(t *testing.T) {
	dict, alphabets := loadDictionary(t, 2)

	words := dict.GetWords(alphabets)
	if len(words) != 2 || words[0] != "look" || words[1] != "north" {
		t.Errorf("GetWords = %v", words)
	}
}
