package zstring

// The default translation between the extra ZSCII characters (155-223) and
// unicode, from the standard. Stories can override this with a unicode
// translation table in the header extension but none of the target corpus
// does, so only the default is wired up.
var defaultUnicodeTranslationTable = map[rune]uint16{
	'ä': 155,
	'ö': 156,
	'ü': 157,
	'Ä': 158,
	'Ö': 159,
	'Ü': 160,
	'ß': 161,
	'»': 162,
	'«': 163,
	'ë': 164,
	'ï': 165,
	'ÿ': 166,
	'Ë': 167,
	'Ï': 168,
	'á': 169,
	'é': 170,
	'í': 171,
	'ó': 172,
	'ú': 173,
	'ý': 174,
	'Á': 175,
	'É': 176,
	'Í': 177,
	'Ó': 178,
	'Ú': 179,
	'Ý': 180,
	'à': 181,
	'è': 182,
	'ì': 183,
	'ò': 184,
	'ù': 185,
	'À': 186,
	'È': 187,
	'Ì': 188,
	'Ò': 189,
	'Ù': 190,
	'â': 191,
	'ê': 192,
	'î': 193,
	'ô': 194,
	'û': 195,
	'Â': 196,
	'Ê': 197,
	'Î': 198,
	'Ô': 199,
	'Û': 200,
	'å': 201,
	'Å': 202,
	'ø': 203,
	'Ø': 204,
	'ã': 205,
	'ñ': 206,
	'õ': 207,
	'Ã': 208,
	'Ñ': 209,
	'Õ': 210,
	'æ': 211,
	'Æ': 212,
	'ç': 213,
	'Ç': 214,
	'þ': 215,
	'ð': 216,
	'Þ': 217,
	'Ð': 218,
	'£': 219,
	'œ': 220,
	'Œ': 221,
	'¡': 222,
	'¿': 223,
}

var zsciiToUnicode = make(map[uint16]rune, len(defaultUnicodeTranslationTable))

func init() {
	for r, zscii := range defaultUnicodeTranslationTable {
		zsciiToUnicode[zscii] = r
	}
}

// ZsciiToRune translates a ZSCII output code into a printable rune.
// Codes with no defined output form become '?' rather than corrupting
// the output stream.
func ZsciiToRune(zscii uint16) rune {
	switch {
	case zscii == 0:
		return 0
	case zscii == 9:
		return '\t'
	case zscii == 13:
		return '\n'
	case zscii >= 32 && zscii <= 126:
		return rune(zscii)
	case zscii >= 155 && zscii <= 223:
		if r, ok := zsciiToUnicode[zscii]; ok {
			return r
		}
		return '?'
	default:
		return '?'
	}
}

// RuneToZscii is the input direction: the ZSCII code a rune encodes to, if
// it has one.
func RuneToZscii(r rune) (uint16, bool) {
	switch {
	case r == '\n':
		return 13, true
	case r == '\t':
		return 9, true
	case r >= 32 && r <= 126:
		return uint16(r), true
	default:
		zscii, ok := defaultUnicodeTranslationTable[r]
		return zscii, ok
	}
}

// IsInputZscii reports whether a byte is legal in a text input buffer.
func IsInputZscii(b uint8) bool {
	return (b >= 32 && b <= 126) || (b >= 155 && b <= 251)
}
