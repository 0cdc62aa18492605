package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nikbrunner/bmsort/internal/search"
	"github.com/nikbrunner/bmsort/internal/tree"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	checkedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78"))

	matchStyle = lipgloss.NewStyle().
			Underline(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// Picker is a filterable multi-select list of folders. It chooses the
// folders an organize run leaves untouched.
type Picker struct {
	folders   []tree.FolderRecord
	results   []search.Result
	input     textinput.Model
	cursor    int
	checked   map[string]bool
	confirmed bool
	cancelled bool
	width     int
	height    int
}

// New creates a Picker over folders with the given IDs already checked.
func New(folders []tree.FolderRecord, checked []string) Picker {
	input := textinput.New()
	input.Placeholder = "filter folders"
	input.Prompt = "/ "
	input.Focus()

	set := make(map[string]bool, len(checked))
	for _, id := range checked {
		set[id] = true
	}
	return Picker{
		folders: folders,
		results: search.Folders(folders, ""),
		input:   input,
		checked: set,
		width:   80,
		height:  24,
	}
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			p.cancelled = true
			return p, tea.Quit

		case tea.KeyEnter:
			p.confirmed = true
			return p, tea.Quit

		case tea.KeyDown, tea.KeyCtrlN, tea.KeyCtrlJ:
			if p.cursor < len(p.results)-1 {
				p.cursor++
			}
			return p, nil

		case tea.KeyUp, tea.KeyCtrlP, tea.KeyCtrlK:
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil

		case tea.KeyTab:
			if p.cursor < len(p.results) {
				id := p.results[p.cursor].Folder.ID
				p.checked[id] = !p.checked[id]
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	before := p.input.Value()
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() != before {
		p.results = search.Folders(p.folders, p.input.Value())
		p.cursor = 0
	}
	return p, cmd
}

// View implements tea.Model.
func (p Picker) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Ignored folders (%d selected)", p.countChecked())))
	b.WriteString("\n")
	b.WriteString(p.input.View())
	b.WriteString("\n\n")

	start, end := p.window()
	for i := start; i < end; i++ {
		r := p.results[i]
		cursor := "  "
		style := normalStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedStyle
		}
		box := "[ ] "
		if p.checked[r.Folder.ID] {
			box = checkedStyle.Render("[x] ")
		}
		fmt.Fprintf(&b, "%s%s%s\n", cursor, box, highlight(r.Folder.Path, r.MatchedIndexes, style))
	}
	if len(p.results) == 0 {
		b.WriteString(helpStyle.Render("  no matching folders"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: move  Tab: toggle  Enter: save  Esc: cancel"))

	return b.String()
}

// window returns the visible slice of results around the cursor.
func (p Picker) window() (int, int) {
	rows := p.height - 7
	if rows < 1 {
		rows = 1
	}
	if len(p.results) <= rows {
		return 0, len(p.results)
	}
	start := p.cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > len(p.results) {
		start = len(p.results) - rows
	}
	return start, start + rows
}

func (p Picker) countChecked() int {
	n := 0
	for _, f := range p.folders {
		if p.checked[f.ID] {
			n++
		}
	}
	return n
}

func highlight(s string, matched []int, style lipgloss.Style) string {
	if len(matched) == 0 {
		return style.Render(s)
	}
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(matchStyle.Inherit(style).Render(string(r)))
		} else {
			b.WriteString(style.Render(string(r)))
		}
	}
	return b.String()
}

// Selected returns the checked folder IDs in folder order, or nil if the
// picker was cancelled.
func (p Picker) Selected() []string {
	if p.cancelled || !p.confirmed {
		return nil
	}
	ids := []string{}
	for _, f := range p.folders {
		if p.checked[f.ID] {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Cancelled returns true if the user cancelled the selection.
func (p Picker) Cancelled() bool {
	return p.cancelled
}

// Run shows the picker and returns the chosen IDs. ok is false when the user
// cancelled.
func Run(folders []tree.FolderRecord, checked []string) (ids []string, ok bool, err error) {
	final, err := tea.NewProgram(New(folders, checked), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, false, err
	}
	p := final.(Picker)
	if p.Cancelled() {
		return nil, false, nil
	}
	return p.Selected(), true, nil
}
