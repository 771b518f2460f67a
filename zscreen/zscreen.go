// Package zscreen holds the capability set a host must supply to run a
// story: text output, line and character input, the v3 status bar, the v4+
// window operations, save/restore storage and an entropy source. Every
// operation is synchronous; the machine blocks on the input calls.
package zscreen

// Screen is the only contract between the interpreter core and the outside
// world.
type Screen interface {
	// Print emits text to the current window with no implicit newline.
	Print(text string)
	Newline()
	PrintNumber(n int16)
	PrintChar(c rune)

	// ReadLine blocks for a line of input, returned without its terminating
	// newline. The second result is true when the host wants the run to end
	// instead of supplying input.
	ReadLine() (string, bool)
	// ReadChar blocks for a single character.
	ReadChar() (rune, bool)

	// SetStatus presents the two preformatted halves of the v3 status bar.
	SetStatus(location string, right string)

	SplitWindow(upperLines uint16)
	SetWindow(window uint16)
	EraseWindow(window int16)
	EraseLine()
	SetCursor(line uint16, column uint16)
	GetCursor() (line uint16, column uint16)
	SetTextStyle(style TextStyle)
	SetColor(foreground Color, background Color)
	BufferMode(buffered bool)

	Width() uint16
	Height() uint16

	// Entropy seeds the machine's RNG when a story asks for an
	// unpredictable sequence; the core never reads a clock itself.
	Entropy() int64

	// Save hands the host an opaque state blob; false means the save
	// failed. Restore returns a previously saved blob, empty on failure.
	Save(data []uint8) bool
	Restore() []uint8
}

type TextStyle uint16

const (
	Roman        TextStyle = 0b0000_0000
	ReverseVideo TextStyle = 0b0000_0001
	Bold         TextStyle = 0b0000_0010
	Italic       TextStyle = 0b0000_0100
	FixedPitch   TextStyle = 0b0000_1000
)

type Color uint8

const (
	Current    Color = 0
	Default    Color = 1
	Black      Color = 2
	Red        Color = 3
	Green      Color = 4
	Yellow     Color = 5
	Blue       Color = 6
	Magenta    Color = 7
	Cyan       Color = 8
	White      Color = 9
	LightGrey  Color = 10
	MediumGrey Color = 11
	DarkGrey   Color = 12
)

func (c Color) ToHex() string {
	switch c {
	case Black:
		return "#000000"
	case Red:
		return "#ff0000"
	case Green:
		return "#00ff00"
	case Yellow:
		return "#ffff00"
	case Blue:
		return "#0000ff"
	case Magenta:
		return "#ff00ff"
	case Cyan:
		return "#00ffff"
	case White:
		return "#ffffff"
	case LightGrey:
		return "#cccccc"
	case MediumGrey:
		return "#828282"
	case DarkGrey:
		return "#474747"
	default:
		return "#ffffff"
	}
}
