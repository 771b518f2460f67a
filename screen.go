package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bcorrigan/zmachine/zscreen"
)

const screenWidth = 80
const screenHeight = 25

// teaScreen is the bubbletea-backed Screen. It runs on the machine's
// goroutine and talks to the UI model purely through messages: rendered
// upper-window snapshots, lower-window text and input requests.
type teaScreen struct {
	outputChannel chan tea.Msg
	inputChannel  chan string
	doneChannel   chan struct{}

	currentWindow uint16
	upperHeight   int
	upperGrid     [][]rune
	cursorLine    int
	cursorColumn  int
	reverseVideo  bool
}

func newTeaScreen(outputChannel chan tea.Msg, inputChannel chan string, doneChannel chan struct{}) *teaScreen {
	return &teaScreen{
		outputChannel: outputChannel,
		inputChannel:  inputChannel,
		doneChannel:   doneChannel,
	}
}

// Close releases the machine goroutine if it is blocked waiting for input.
func (s *teaScreen) Close() {
	close(s.doneChannel)
}

func (s *teaScreen) send(msg tea.Msg) {
	select {
	case s.outputChannel <- msg:
	case <-s.doneChannel:
	}
}

func (s *teaScreen) Print(text string) {
	if s.currentWindow == 1 {
		s.printUpper(text)
		return
	}
	s.send(textUpdateMessage(text))
}

func (s *teaScreen) printUpper(text string) {
	for _, r := range text {
		if r == '\n' {
			s.cursorLine++
			s.cursorColumn = 0
			continue
		}
		if s.cursorLine < len(s.upperGrid) && s.cursorColumn < screenWidth {
			s.upperGrid[s.cursorLine][s.cursorColumn] = r
			s.cursorColumn++
		}
	}
	s.sendUpperWindow()
}

func (s *teaScreen) sendUpperWindow() {
	lines := make([]string, len(s.upperGrid))
	for i, row := range s.upperGrid {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	s.send(upperWindowMessage(lines))
}

func (s *teaScreen) Newline()             { s.Print("\n") }
func (s *teaScreen) PrintNumber(n int16)  { s.Print(fmt.Sprintf("%d", n)) }
func (s *teaScreen) PrintChar(c rune)     { s.Print(string(c)) }

func (s *teaScreen) ReadLine() (string, bool) {
	s.send(waitForInputMessage{single: false})
	select {
	case line := <-s.inputChannel:
		return line, false
	case <-s.doneChannel:
		return "", true
	}
}

func (s *teaScreen) ReadChar() (rune, bool) {
	s.send(waitForInputMessage{single: true})
	select {
	case text := <-s.inputChannel:
		for _, r := range text {
			return r, false
		}
		return '\n', false
	case <-s.doneChannel:
		return 0, true
	}
}

func (s *teaScreen) SetStatus(location string, right string) {
	s.send(statusBarMessage{location: location, right: right})
}

func (s *teaScreen) SplitWindow(upperLines uint16) {
	s.upperHeight = int(upperLines)
	grid := make([][]rune, s.upperHeight)
	for i := range grid {
		grid[i] = blankRow()
		if i < len(s.upperGrid) {
			copy(grid[i], s.upperGrid[i])
		}
	}
	s.upperGrid = grid
	s.sendUpperWindow()
}

func (s *teaScreen) SetWindow(window uint16) {
	s.currentWindow = window
	if window == 1 {
		s.cursorLine = 0
		s.cursorColumn = 0
	}
}

func (s *teaScreen) EraseWindow(window int16) {
	switch window {
	case -1: // unsplit then clear everything
		s.upperHeight = 0
		s.upperGrid = nil
		s.currentWindow = 0
		s.sendUpperWindow()
		s.send(clearScreenMessage{})
	case 0:
		s.send(clearScreenMessage{})
	case 1:
		for i := range s.upperGrid {
			s.upperGrid[i] = blankRow()
		}
		s.sendUpperWindow()
	}
}

func (s *teaScreen) EraseLine() {
	if s.currentWindow == 1 && s.cursorLine < len(s.upperGrid) {
		for col := s.cursorColumn; col < screenWidth; col++ {
			s.upperGrid[s.cursorLine][col] = ' '
		}
		s.sendUpperWindow()
	}
}

func (s *teaScreen) SetCursor(line uint16, column uint16) {
	// Cursor addressing is 1-based and only meaningful in the upper window
	if line > 0 {
		s.cursorLine = int(line) - 1
	}
	if column > 0 {
		s.cursorColumn = int(column) - 1
	}
}

func (s *teaScreen) GetCursor() (uint16, uint16) {
	return uint16(s.cursorLine) + 1, uint16(s.cursorColumn) + 1
}

func (s *teaScreen) SetTextStyle(style zscreen.TextStyle) {
	s.reverseVideo = style&zscreen.ReverseVideo != 0
}

func (s *teaScreen) SetColor(foreground zscreen.Color, background zscreen.Color) {
	// Colour support is cosmetic for the target corpus, deliberately skipped
}

func (s *teaScreen) BufferMode(buffered bool) {}

func (s *teaScreen) Width() uint16  { return screenWidth }
func (s *teaScreen) Height() uint16 { return screenHeight }

func (s *teaScreen) Entropy() int64 {
	if rngSeed != 0 {
		return rngSeed
	}
	return time.Now().UTC().UnixNano()
}

func (s *teaScreen) savePath() string {
	if savFilePath != "" {
		return savFilePath
	}
	if romFilePath != "" {
		return romFilePath + ".sav"
	}
	return "story.sav"
}

func (s *teaScreen) Save(data []uint8) bool {
	return os.WriteFile(s.savePath(), data, 0644) == nil
}

func (s *teaScreen) Restore() []uint8 {
	data, err := os.ReadFile(s.savePath())
	if err != nil {
		return nil
	}
	return data
}

func blankRow() []rune {
	row := make([]rune, screenWidth)
	for i := range row {
		row[i] = ' '
	}
	return row
}
