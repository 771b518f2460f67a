package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/bcorrigan/zmachine/selectstoryui"
	"github.com/bcorrigan/zmachine/zmachine"
)

var (
	romFilePath string
	savFilePath string
	rngSeed     int64

	appStyle = lipgloss.NewStyle().Padding(1, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1a1a1a")).
			Background(lipgloss.Color("#cccccc"))

	upperWindowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#dddddd"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5555"))
)

type appState int

const (
	appRunning            appState = iota
	appWaitingForInput    appState = iota
	appWaitingForChar     appState = iota
	appFinished           appState = iota
)

// Messages from the machine goroutine to the bubbletea model
type textUpdateMessage string
type clearScreenMessage struct{}
type statusBarMessage struct{ location, right string }
type upperWindowMessage []string
type waitForInputMessage struct{ single bool }
type runFinishedMessage struct{ err error }

func init() {
	flag.StringVar(&romFilePath, "rom", "", "The path of a z-machine rom (empty opens the ifarchive story browser)")
	flag.StringVar(&savFilePath, "save", "", "The path save states are written to (defaults to <rom>.sav)")
	flag.Int64Var(&rngSeed, "seed", 0, "Seed the RNG for a reproducible run (0 uses system entropy)")
	flag.Parse()
}

func main() {
	var tui *tea.Program

	if romFilePath == "" {
		tui = tea.NewProgram(selectstoryui.New(bootMachine), tea.WithAltScreen())
	} else {
		romFileBytes, err := os.ReadFile(romFilePath)
		if err != nil {
			fmt.Println("Error reading rom:", err)
			os.Exit(1)
		}

		model, cmd := bootMachine(romFileBytes)
		if cmd == nil {
			os.Exit(1)
		}
		tui = tea.NewProgram(model)
	}

	if _, err := tui.Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}

// bootMachine wires a freshly loaded story to a screen and hands back the
// player model. Also the handoff point for the story browser.
func bootMachine(romFileBytes []uint8) (tea.Model, tea.Cmd) {
	outputChannel := make(chan tea.Msg, 256)
	inputChannel := make(chan string)
	doneChannel := make(chan struct{})

	screen := newTeaScreen(outputChannel, inputChannel, doneChannel)

	z, err := zmachine.LoadRom(romFileBytes, screen)
	if err != nil {
		fmt.Println("Error loading rom:", err)
		return nil, nil
	}

	model := newApplicationModel(z, screen)
	return model, model.Init()
}

type applicationModel struct {
	zMachine   *zmachine.ZMachine
	screen     *teaScreen
	outputText string
	statusBar  statusBarMessage
	upperLines []string
	appState   appState
	inputBox   textinput.Model
	runError   error
	width      int
}

func newApplicationModel(z *zmachine.ZMachine, screen *teaScreen) applicationModel {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40
	ti.Prompt = ""

	return applicationModel{
		zMachine: z,
		screen:   screen,
		appState: appRunning,
		inputBox: ti,
		width:    80,
	}
}

func (m applicationModel) Init() tea.Cmd {
	return tea.Batch(
		waitForOutput(m.screen.outputChannel),
		runInterpreter(m.zMachine, m.screen),
		tea.SetWindowTitle(romFilePath),
	)
}

func runInterpreter(z *zmachine.ZMachine, screen *teaScreen) tea.Cmd {
	return func() tea.Msg {
		err := z.Run()
		return runFinishedMessage{err: err}
	}
}

func waitForOutput(sub <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

func (m applicationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.screen.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			if m.appState == appWaitingForInput {
				m.appState = appRunning
				line := m.inputBox.Value()
				m.outputText += line + "\n"
				m.inputBox.SetValue("")
				m.screen.inputChannel <- line
				return m, nil
			}
		case tea.KeyRunes:
			if m.appState == appWaitingForChar && len(msg.Runes) > 0 {
				m.appState = appRunning
				m.screen.inputChannel <- string(msg.Runes[0])
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case textUpdateMessage:
		m.outputText += string(msg)
		return m, waitForOutput(m.screen.outputChannel)

	case clearScreenMessage:
		m.outputText = ""
		return m, waitForOutput(m.screen.outputChannel)

	case statusBarMessage:
		m.statusBar = msg
		return m, waitForOutput(m.screen.outputChannel)

	case upperWindowMessage:
		m.upperLines = msg
		return m, waitForOutput(m.screen.outputChannel)

	case waitForInputMessage:
		if msg.single {
			m.appState = appWaitingForChar
		} else {
			m.appState = appWaitingForInput
		}
		return m, waitForOutput(m.screen.outputChannel)

	case runFinishedMessage:
		m.appState = appFinished
		m.runError = msg.err
		return m, tea.Quit
	}

	if m.appState == appWaitingForInput {
		m.inputBox, cmd = m.inputBox.Update(msg)
	}

	return m, cmd
}

func (m applicationModel) View() string {
	s := strings.Builder{}

	if m.statusBar.location != "" || m.statusBar.right != "" {
		width := min(m.width, 80)
		gap := width - len(m.statusBar.location) - len(m.statusBar.right)
		if gap < 1 {
			gap = 1
		}
		s.WriteString(statusBarStyle.Render(m.statusBar.location + strings.Repeat(" ", gap) + m.statusBar.right))
		s.WriteByte('\n')
	}

	for _, line := range m.upperLines {
		s.WriteString(upperWindowStyle.Render(line))
		s.WriteByte('\n')
	}

	text := m.outputText
	if m.appState == appWaitingForInput {
		text += m.inputBox.View()
	}
	s.WriteString(wordwrap.String(text, min(m.width, 80)))

	if m.runError != nil {
		s.WriteByte('\n')
		s.WriteString(errorStyle.Render(m.runError.Error()))
	}

	return appStyle.Render(s.String())
}
