package zcore

import (
	"encoding/binary"
	"fmt"
)

// Core wraps the story image bytes and caches every interesting header
// field. All other packages read and write memory through it.
type Core struct {
	bytes           []uint8
	originalDynamic []uint8 // pristine copy of [0, StaticMemoryBase) for restart

	Version                          uint8
	FlagByte1                        uint8
	StatusBarTimeBased               bool
	ReleaseNumber                    uint16
	PagedMemoryBase                  uint16
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	AbbreviationTableBase            uint16
	FileChecksum                     uint16
	InterpreterNumber                uint8
	InterpreterVersion               uint8
	ScreenHeightLines                uint8
	ScreenWidthChars                 uint8
	ScreenWidthUnits                 uint16
	ScreenHeightUnits                uint16
	FontHeight                       uint8
	FontWidth                        uint8
	RoutinesOffset                   uint16
	StringOffset                     uint16
	DefaultBackgroundColorNumber     uint8
	DefaultForegroundColorNumber     uint8
	TerminatingCharTableBase         uint16
	OutputStream3Width               uint16
	StandardRevisionNumber           uint16
	AlternativeCharSetBaseAddress    uint16
	ExtensionTableBaseAddress        uint16
	UnicodeExtensionTableBaseAddress uint16
}

func LoadCore(bytes []uint8) (Core, error) {
	if len(bytes) < 0x40 {
		return Core{}, fmt.Errorf("%w: image is %d bytes, smaller than the 64 byte header", ErrMalformedImage, len(bytes))
	}

	version := bytes[0]
	if version == 0 || version > 8 {
		return Core{}, fmt.Errorf("%w: version byte %d is not a z-machine version", ErrMalformedImage, version)
	}
	if version < 3 || version == 6 {
		return Core{}, fmt.Errorf("%w: version %d story files are not supported", ErrMalformedImage, version)
	}

	staticMemoryBase := binary.BigEndian.Uint16(bytes[0x0e:0x10])
	if staticMemoryBase < 0x40 || uint32(staticMemoryBase) > uint32(len(bytes)) {
		return Core{}, fmt.Errorf("%w: static memory base 0x%x outside image", ErrMalformedImage, staticMemoryBase)
	}

	highMemoryBase := binary.BigEndian.Uint16(bytes[0x04:0x06])
	if highMemoryBase < staticMemoryBase {
		return Core{}, fmt.Errorf("%w: high memory base 0x%x below static memory base 0x%x", ErrMalformedImage, highMemoryBase, staticMemoryBase)
	}

	bytes[0x1e] = 0x6 // Interpreter number - IBM PC chosen as closest match
	bytes[0x1f] = 0x1 // Interpreter version - nobody cares

	// Screen dimensions - games may use these for layout calculations
	bytes[0x20] = 25 // Screen height (lines)
	bytes[0x21] = 80 // Screen width (characters)
	bytes[0x22] = 0  // Screen width (units) - high byte
	bytes[0x23] = 80 // Screen width (units) - low byte (same as chars for text-only)
	bytes[0x24] = 0  // Screen height (units) - high byte
	bytes[0x25] = 25 // Screen height (units) - low byte
	bytes[0x26] = 1  // Font height (units)
	bytes[0x27] = 1  // Font width (units)

	// Claim that this interpreter supports v1.2 of the spec (aspirational!)
	bytes[0x32] = 0x1
	bytes[0x33] = 0x2

	// Set the flags to say what is available in this interpreter
	if version <= 3 {
		bytes[1] |= 0b0010_0000 // Only flag to set is the "split screen available" one
	} else {
		// Flags: colors (0x01), bold (0x04), italic (0x08), split screen (0x20)
		// NOT claiming: pictures (0x02), fixed-width default (0x10), timed input (0x80)
		bytes[1] |= 0b0010_1101
	}

	// Parse the extension table for any interesting information we want
	extensionTableBaseAddress := binary.BigEndian.Uint16(bytes[0x36:0x38])
	unicodeExtensionTableBaseAddress := uint16(0)
	if extensionTableBaseAddress != 0 && int(extensionTableBaseAddress)+8 <= len(bytes) {
		extensionWordCount := binary.BigEndian.Uint16(bytes[extensionTableBaseAddress : extensionTableBaseAddress+2])
		if extensionWordCount >= 3 {
			unicodeExtensionTableBaseAddress = binary.BigEndian.Uint16(bytes[extensionTableBaseAddress+6 : extensionTableBaseAddress+8])
		}
	}

	originalDynamic := make([]uint8, staticMemoryBase)
	copy(originalDynamic, bytes[:staticMemoryBase])

	core := Core{
		bytes:                            bytes,
		originalDynamic:                  originalDynamic,
		Version:                          version,
		FlagByte1:                        bytes[0x01],
		StatusBarTimeBased:               bytes[0x01]&0b0000_0010 == 0b0000_0010,
		ReleaseNumber:                    binary.BigEndian.Uint16(bytes[0x02:0x04]),
		PagedMemoryBase:                  highMemoryBase,
		FirstInstruction:                 binary.BigEndian.Uint16(bytes[0x06:0x08]),
		DictionaryBase:                   binary.BigEndian.Uint16(bytes[0x08:0x0a]),
		ObjectTableBase:                  binary.BigEndian.Uint16(bytes[0x0a:0x0c]),
		GlobalVariableBase:               binary.BigEndian.Uint16(bytes[0x0c:0x0e]),
		StaticMemoryBase:                 staticMemoryBase,
		AbbreviationTableBase:            binary.BigEndian.Uint16(bytes[0x18:0x1a]),
		FileChecksum:                     binary.BigEndian.Uint16(bytes[0x1c:0x1e]),
		InterpreterNumber:                bytes[0x1e],
		InterpreterVersion:               bytes[0x1f],
		ScreenHeightLines:                bytes[0x20],
		ScreenWidthChars:                 bytes[0x21],
		ScreenWidthUnits:                 binary.BigEndian.Uint16(bytes[0x22:0x24]),
		ScreenHeightUnits:                binary.BigEndian.Uint16(bytes[0x24:0x26]),
		FontHeight:                       bytes[0x26],
		FontWidth:                        bytes[0x27],
		RoutinesOffset:                   binary.BigEndian.Uint16(bytes[0x28:0x2a]),
		StringOffset:                     binary.BigEndian.Uint16(bytes[0x2a:0x2c]),
		DefaultBackgroundColorNumber:     bytes[0x2c],
		DefaultForegroundColorNumber:     bytes[0x2d],
		TerminatingCharTableBase:         binary.BigEndian.Uint16(bytes[0x2e:0x30]),
		OutputStream3Width:               binary.BigEndian.Uint16(bytes[0x30:0x32]),
		StandardRevisionNumber:           binary.BigEndian.Uint16(bytes[0x32:0x34]),
		AlternativeCharSetBaseAddress:    binary.BigEndian.Uint16(bytes[0x34:0x36]),
		ExtensionTableBaseAddress:        extensionTableBaseAddress,
		UnicodeExtensionTableBaseAddress: unicodeExtensionTableBaseAddress,
	}

	if fileLength := core.FileLength(); fileLength > uint32(len(bytes)) {
		return Core{}, fmt.Errorf("%w: header claims %d bytes but image has %d", ErrMalformedImage, fileLength, len(bytes))
	}

	return core, nil
}

func (core *Core) FileLength() uint32 {
	var multiplier uint32
	switch {
	case core.Version <= 3:
		multiplier = 2
	case core.Version <= 5:
		multiplier = 4
	default:
		multiplier = 8
	}
	return uint32(binary.BigEndian.Uint16(core.bytes[0x1a:0x1c])) * multiplier
}

// PackedRoutineAddress expands a packed routine address to a byte address.
func (core *Core) PackedRoutineAddress(packed uint32) uint32 {
	switch {
	case core.Version < 4:
		return 2 * packed
	case core.Version < 6:
		return 4 * packed
	case core.Version < 8:
		return 4*packed + 8*uint32(core.RoutinesOffset)
	default:
		return 8 * packed
	}
}

// PackedStringAddress expands a packed string address to a byte address.
// Identical to routine expansion except on v6/v7 where the header carries
// separate routine and string offsets.
func (core *Core) PackedStringAddress(packed uint32) uint32 {
	switch {
	case core.Version < 4:
		return 2 * packed
	case core.Version < 6:
		return 4 * packed
	case core.Version < 8:
		return 4*packed + 8*uint32(core.StringOffset)
	default:
		return 8 * packed
	}
}

func (core *Core) ReadByte(address uint32) uint8 {
	if address >= uint32(len(core.bytes)) {
		panic(Faultf(MemoryViolation, "read of byte 0x%x beyond end of memory 0x%x", address, len(core.bytes)))
	}
	return core.bytes[address]
}

func (core *Core) ReadHalfWord(address uint32) uint16 {
	if address+2 > uint32(len(core.bytes)) {
		panic(Faultf(MemoryViolation, "read of half word 0x%x beyond end of memory 0x%x", address, len(core.bytes)))
	}
	return binary.BigEndian.Uint16(core.bytes[address : address+2])
}

func (core *Core) ReadLongWord(address uint32) uint64 {
	if address+8 > uint32(len(core.bytes)) {
		panic(Faultf(MemoryViolation, "read of long word 0x%x beyond end of memory 0x%x", address, len(core.bytes)))
	}
	return binary.BigEndian.Uint64(core.bytes[address : address+8])
}

func (core *Core) ReadSlice(startAddress uint32, endAddress uint32) []uint8 {
	if endAddress > uint32(len(core.bytes)) || startAddress > endAddress {
		panic(Faultf(MemoryViolation, "read of slice [0x%x, 0x%x) beyond end of memory 0x%x", startAddress, endAddress, len(core.bytes)))
	}
	return core.bytes[startAddress:endAddress]
}

// Only dynamic memory may be written by a running story.
func (core *Core) checkWritable(address uint32, width uint32) {
	if address+width > uint32(core.StaticMemoryBase) {
		panic(Faultf(MemoryViolation, "write of %d bytes at 0x%x above static memory base 0x%x", width, address, core.StaticMemoryBase))
	}
}

func (core *Core) WriteByte(address uint32, value uint8) {
	core.checkWritable(address, 1)
	core.bytes[address] = value
}

func (core *Core) WriteHalfWord(address uint32, value uint16) {
	core.checkWritable(address, 2)
	binary.BigEndian.PutUint16(core.bytes[address:address+2], value)
}

func (core *Core) MemoryLength() uint32 {
	return uint32(len(core.bytes))
}

// DynamicMemory returns a copy of the current dynamic region, as captured
// into save states.
func (core *Core) DynamicMemory() []uint8 {
	dynamic := make([]uint8, core.StaticMemoryBase)
	copy(dynamic, core.bytes[:core.StaticMemoryBase])
	return dynamic
}

// RestoreDynamicMemory copies a previously captured dynamic region back in.
// The transcription and fixed pitch bits of flags2 survive per the standard.
func (core *Core) RestoreDynamicMemory(dynamic []uint8) {
	if len(dynamic) != int(core.StaticMemoryBase) {
		panic(Faultf(MemoryViolation, "dynamic memory snapshot is 0x%x bytes, expected 0x%x", len(dynamic), core.StaticMemoryBase))
	}
	flags2 := core.bytes[0x11] & 0b0000_0011
	copy(core.bytes[:core.StaticMemoryBase], dynamic)
	core.bytes[0x11] = (core.bytes[0x11] &^ 0b0000_0011) | flags2
}

// Restart re-initializes dynamic memory from the image as originally loaded.
func (core *Core) Restart() {
	core.RestoreDynamicMemory(core.originalDynamic)
}

// Checksum sums every byte from 0x40 up to the header file length, modulo
// 0x10000, for the verify opcode. Dynamic bytes come from the original
// image so in-play writes don't perturb the result.
func (core *Core) Checksum() uint16 {
	length := core.FileLength()
	if length > uint32(len(core.bytes)) || length == 0 {
		length = uint32(len(core.bytes))
	}

	sum := uint16(0)
	for addr := uint32(0x40); addr < length; addr++ {
		if addr < uint32(core.StaticMemoryBase) {
			sum += uint16(core.originalDynamic[addr])
		} else {
			sum += uint16(core.bytes[addr])
		}
	}
	return sum
}
