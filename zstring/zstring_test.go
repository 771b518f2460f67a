package zstring

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bcorrigan/zmachine/zcore"
)

func buildImage(version uint8) []uint8 {
	mem := make([]uint8, 0x800)
	mem[0x00] = version
	binary.BigEndian.PutUint16(mem[0x04:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x06:], 0x0500)
	binary.BigEndian.PutUint16(mem[0x08:], 0x0300)
	binary.BigEndian.PutUint16(mem[0x0a:], 0x0200)
	binary.BigEndian.PutUint16(mem[0x0c:], 0x0100)
	binary.BigEndian.PutUint16(mem[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(mem[0x18:], 0x0080)
	return mem
}

func coreWithBytes(t *testing.T, version uint8, addr uint32, data []uint8) *zcore.Core {
	t.Helper()
	mem := buildImage(version)
	copy(mem[addr:], data)
	core, err := zcore.LoadCore(mem)
	if err != nil {
		t.Fatal(err)
	}
	return &core
}

var zstringDecodingTests = []struct {
	name      string
	in        []uint8
	out       string
	bytesRead uint32
}{
	// 0x11aa = [4 13 10] = shift-A1, 'H', 'e'; 0xc634 terminates = [17 17 20] = "llo"
	{"golden hello", []uint8{0x11, 0xaa, 0xc6, 0x34, 0x16, 0x45}, "Hello", 4},
	// A single padded word: [4 30 5] = shift-A1, 'Y', pad
	{"single letter", []uint8{0x93, 0xc5}, "Y", 2},
	// [5 25 0] with A2 shift falling on 25 = '"', then space; second word all pads
	{"a2 shift", []uint8{0x17, 0x20, 0x94, 0xa5}, "\" ", 4},
}

func TestZStringDecoding(t *testing.T) {
	for _, tt := range zstringDecodingTests {
		t.Run(tt.name, func(t *testing.T) {
			core := coreWithBytes(t, 3, 0x120, tt.in)
			alphabets := LoadAlphabets(core)

			zstr, bytesRead := Decode(core, 0x120, 0, alphabets, true)

			if tt.out != zstr {
				t.Fatalf("zstr read incorrectly expected=%q, actual=%q", tt.out, zstr)
			}
			if tt.bytesRead != bytesRead {
				t.Fatalf("zstr read incorrect number of bytes expected=%d, actual=%d", tt.bytesRead, bytesRead)
			}
		})
	}
}

var zstringEncodingTests = []struct {
	in      string
	out     []uint8
	version uint8
}{
	{"look", []uint8{0x46, 0x94, 0xc0, 0xa5}, 3},
	{"north", []uint8{0x4e, 0x97, 0xe5, 0xa5}, 3},
	// seven letters truncate to 6 z-characters on v3
	{"examine", []uint8{0x2b, 0xa6, 0xc9, 0xd3}, 3},
	{"look", []uint8{0x46, 0x94, 0x40, 0xa5, 0x94, 0xa5}, 5},
}

func TestZStringEncoding(t *testing.T) {
	for _, tt := range zstringEncodingTests {
		t.Run(tt.in, func(t *testing.T) {
			zstr := Encode([]rune(tt.in), tt.version, &defaultAlphabetsV2)

			if !bytes.Equal(tt.out, zstr) {
				t.Fatalf(`%q encoded incorrectly expected=%x, actual=%x`, tt.in, tt.out, zstr)
			}
		})
	}
}

// Encoding a dictionary-legal word then decoding the key yields the original
// truncated-and-padded form.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, word := range []string{"look", "north", "sword", "xyzzy", "i", "q2", "lantern"} {
		encoded := Encode([]rune(word), 3, &defaultAlphabetsV2)
		if len(encoded) != 4 {
			t.Fatalf("%q encoded to %d bytes, want 4", word, len(encoded))
		}

		core := coreWithBytes(t, 3, 0x120, encoded)
		decoded, _ := Decode(core, 0x120, 0, LoadAlphabets(core), false)

		want := word
		if len(want) > 6 {
			want = want[:6]
		}
		if decoded != want {
			t.Errorf("round trip of %q gave %q, want %q", word, decoded, want)
		}
	}
}

func TestZsciiEscapeRoundTrip(t *testing.T) {
	// '>' is in no v3 alphabet so it travels via the 10 bit ZSCII escape
	encoded := Encode([]rune(">"), 3, &defaultAlphabetsV2)

	core := coreWithBytes(t, 3, 0x120, encoded)
	decoded, _ := Decode(core, 0x120, 0, LoadAlphabets(core), false)

	if decoded != ">" {
		t.Fatalf("escape round trip gave %q", decoded)
	}
}

func TestAbbreviationExpansion(t *testing.T) {
	mem := buildImage(3)

	// Abbreviation 0 points (as a word address) at "the " stored at 0x90
	binary.BigEndian.PutUint16(mem[0x80:], 0x90/2)
	binary.BigEndian.PutUint16(mem[0x90:], 0x65aa) // [25 13 10] = "the"
	binary.BigEndian.PutUint16(mem[0x92:], 0x80a5) // [0 5 5] = " " and pads

	// [1 0] abbreviation 0, then [24 26 19] = "sun"
	binary.BigEndian.PutUint16(mem[0xa0:], 0x0418)
	binary.BigEndian.PutUint16(mem[0xa2:], 0xea65)

	coreVal, err := zcore.LoadCore(mem)
	if err != nil {
		t.Fatal(err)
	}
	core := &coreVal
	alphabets := LoadAlphabets(core)

	str, bytesRead := Decode(core, 0xa0, 0, alphabets, true)
	if str != "the sun" {
		t.Fatalf("abbreviation expansion gave %q, want %q", str, "the sun")
	}
	if bytesRead != 4 {
		t.Fatalf("bytesRead = %d, want 4", bytesRead)
	}

	// With expansion disallowed (inside another expansion) the reference
	// produces nothing rather than recursing
	str, _ = Decode(core, 0xa0, 0, alphabets, false)
	if str != "sun" {
		t.Fatalf("unexpanded decode gave %q, want %q", str, "sun")
	}
}

func TestDecodeRespectsEndPointer(t *testing.T) {
	// Two words with no terminator bit, as in dictionary entries
	core := coreWithBytes(t, 3, 0x120, []uint8{0x46, 0x94, 0x40, 0xa5, 0x46, 0x94})

	str, bytesRead := Decode(core, 0x120, 0x124, LoadAlphabets(core), false)
	if str != "look" {
		t.Fatalf("bounded decode gave %q", str)
	}
	if bytesRead != 4 {
		t.Fatalf("bounded decode read %d bytes", bytesRead)
	}
}

func TestZsciiToRune(t *testing.T) {
	tests := []struct {
		zscii uint16
		out   rune
	}{
		{13, '\n'},
		{32, ' '},
		{65, 'A'},
		{126, '~'},
		{155, 'ä'},
		{223, '¿'},
		{5, '?'}, // no printable form
	}

	for _, tt := range tests {
		if got := ZsciiToRune(tt.zscii); got != tt.out {
			t.Errorf("ZsciiToRune(%d) = %q, want %q", tt.zscii, got, tt.out)
		}
	}
}

func TestRuneToZsciiInverse(t *testing.T) {
	for _, r := range []rune{'a', 'Z', ' ', '>', 'ä', '¿', '\n'} {
		zscii, ok := RuneToZscii(r)
		if !ok {
			t.Fatalf("%q has no zscii code", r)
		}
		if back := ZsciiToRune(zscii); back != r {
			t.Errorf("%q -> %d -> %q", r, zscii, back)
		}
	}

	if _, ok := RuneToZscii('日'); ok {
		t.Error("unrepresentable rune should not map")
	}
}
