package zstring

import "github.com/bcorrigan/zmachine/zcore"

// expandAbbreviation resolves abbreviation z-character z (1-3) with index x
// into its expansion text. Expansion is a single level deep: abbreviation
// references inside an expansion are not themselves expanded, which keeps a
// corrupt table from recursing forever.
func expandAbbreviation(core *zcore.Core, alphabets *Alphabets, z uint8, x uint8, allowed bool) string {
	if !allowed {
		return ""
	}

	abbrIx := 32*uint16(z-1) + uint16(x)
	entryAddr := uint32(core.AbbreviationTableBase) + 2*uint32(abbrIx)

	// Abbreviation table entries are word addresses whatever the version
	strAddr := 2 * uint32(core.ReadHalfWord(entryAddr))

	str, _ := Decode(core, strAddr, 0, alphabets, false)
	return str
}
