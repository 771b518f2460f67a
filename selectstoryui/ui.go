package selectstoryui

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const indexURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"

var docStyle = lipgloss.NewStyle().Margin(1, 2)

var storyFilePattern = regexp.MustCompile(`.*\.z[12345678]$`)
var releaseDatePattern = regexp.MustCompile(`\d{2}-\w{3}-\d{4}`)

type story struct {
	name        string
	releaseDate time.Time
	url         string
	description string
	ifdbEntry   string
	ifwiki      string
}

func (s story) Title() string       { return s.name }
func (s story) Description() string { return s.description }
func (s story) FilterValue() string { return s.name + s.description }

// SelectStoryModel lists the if-archive's zcode directory and downloads the
// selected story, handing the raw bytes to the boot callback.
type SelectStoryModel struct {
	storyList   list.Model
	downloading bool
	err         error
	boot        func([]uint8) (tea.Model, tea.Cmd)
}

func New(boot func([]uint8) (tea.Model, tea.Cmd)) SelectStoryModel {
	storyList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	storyList.Title = "Z-Machine stories from ifarchive"

	return SelectStoryModel{
		storyList: storyList,
		boot:      boot,
	}
}

type storiesDownloadedMsg []list.Item
type downloadedStoryMsg []uint8

type errMsg struct{ error }

func (e errMsg) Error() string { return e.error.Error() }

func (m SelectStoryModel) Init() tea.Cmd {
	return downloadStoryList
}

func (m SelectStoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if s, selected := m.storyList.SelectedItem().(story); selected {
				m.downloading = true
				return m, downloadStory(s)
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.storyList.SetSize(msg.Width-h, msg.Height-v)

	case storiesDownloadedMsg:
		return m, m.storyList.SetItems([]list.Item(msg))

	case downloadedStoryMsg:
		newModel, cmd := m.boot([]uint8(msg))
		if newModel == nil {
			m.err = fmt.Errorf("downloaded story could not be loaded")
			return m, nil
		}
		return newModel, cmd

	case errMsg:
		m.err = msg
		return m, nil
	}

	var cmd tea.Cmd
	m.storyList, cmd = m.storyList.Update(msg)
	return m, cmd
}

func (m SelectStoryModel) View() string {
	if m.err != nil {
		return docStyle.Render(m.err.Error())
	}
	if m.downloading {
		return docStyle.Render("Downloading story...")
	}
	return docStyle.Render(m.storyList.View())
}

func downloadStory(s story) tea.Cmd {
	return func() tea.Msg {
		c := &http.Client{
			Timeout: 60 * time.Second,
		}
		res, err := c.Get(s.url)
		if err != nil {
			return errMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck
		if res.StatusCode != 200 {
			return errMsg{fmt.Errorf("bad status %d fetching %s", res.StatusCode, s.url)}
		}

		storyBytes, err := io.ReadAll(res.Body)
		if err != nil {
			return errMsg{err}
		}

		return downloadedStoryMsg(storyBytes)
	}
}

func downloadStoryList() tea.Msg {
	c := &http.Client{
		Timeout: 10 * time.Second,
	}
	res, err := c.Get(indexURL)
	if err != nil {
		return errMsg{err}
	}
	defer res.Body.Close() // nolint:errcheck
	if res.StatusCode != 200 {
		return errMsg{fmt.Errorf("bad status %d fetching story index", res.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return errMsg{err}
	}

	var stories []list.Item

	doc.Find("dl dt").Each(func(i int, sel *goquery.Selection) {
		title := sel.Find("a").Text()
		href, _ := sel.Find("a").Attr("href")

		if !storyFilePattern.MatchString(href) {
			return
		}

		rawTimeString := sel.Find("span").Text()
		releaseDate, _ := time.Parse("02-Jan-2006", releaseDatePattern.FindString(rawTimeString))

		var description string
		var ifdbEntry string
		var ifwiki string

		sel.NextUntil("dt").Each(func(j int, detail *goquery.Selection) {
			switch {
			case strings.Contains(detail.Text(), "IFDB"):
				ifdbEntry, _ = detail.Find("a").Attr("href")
			case strings.Contains(detail.Text(), "IFWiki"):
				ifwiki, _ = detail.Find("a").Attr("href")
			case len(detail.ChildrenFiltered("p").Nodes) == 1:
				description = detail.Find("p").Text()
			}
		})

		stories = append(stories, story{
			name:        title,
			releaseDate: releaseDate,
			url:         "https://www.ifarchive.org" + href,
			description: description,
			ifwiki:      ifwiki,
			ifdbEntry:   ifdbEntry,
		})
	})

	return storiesDownloadedMsg(stories)
}
