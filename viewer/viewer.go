package viewer

import (
	"fmt"
	"io"

	"github.com/activecm/beaconsift/ingest"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const ellipsis = "…"

// styles
var (
	listStyle       = lipgloss.NewStyle().Margin(0, 0)
	listHeaderStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(lavender).Foreground(subduedTextColor).MarginBottom(1)
	sideBarStyle    = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(mauve)
	helpStyle       = lipgloss.NewStyle().Foreground(overlay0).MarginTop(1)
)

// Item is one hunt result row in the results list.
type Item struct {
	ingest.HuntResult
}

// FilterValue implements list.Item.
func (i Item) FilterValue() string { return i.Src + " " + i.Dst }

func (i Item) GetSeverity() string { return ScoreSeverity(i.Report.Score) }
func (i Item) GetScore() string    { return fmt.Sprintf("%.3f", i.Report.Score) }

type column struct {
	name  string
	width int
}

type keyMap struct {
	quit key.Binding
}

// Model is the terminal UI for browsing hunt results: a score-ordered list
// with a detail pane for the selected candidate.
type Model struct {
	List    list.Model
	Sidebar viewport.Model
	columns []column
	keys    keyMap
	title   string
	width   int
}

// CreateUI runs the interactive results browser.
func CreateUI(results []ingest.HuntResult) error {
	m := NewModel(results)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	return nil
}

// NewModel builds the browser model from pre-sorted hunt results.
func NewModel(results []ingest.HuntResult) *Model {
	// the first column loses 2 cells to the header margin and 3 to the cell
	// border, so it must be wider than the longest severity label plus 5
	columns := []column{{"Severity", 14}, {"Score", 10}, {"Source", 20}, {"Destination", 30}, {"Conns", 10}}

	items := make([]list.Item, 0, len(results))
	for _, result := range results {
		items = append(items, Item{result})
	}

	width := getTableWidth(columns)
	height := 20

	d := listDelegate{columns: columns}
	rows := list.New(items, d, width, height)
	rows.SetShowStatusBar(false)
	rows.SetShowTitle(false)
	rows.SetFilteringEnabled(false)
	rows.SetShowHelp(false)

	keys := keyMap{
		quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}

	p := message.NewPrinter(language.English)
	title := p.Sprintf("Beacon Candidates (%d)", len(results))

	m := &Model{
		List:    rows,
		Sidebar: viewport.Model{Width: 64, Height: height + 2},
		columns: columns,
		keys:    keys,
		title:   title,
		width:   width,
	}
	m.refreshSidebar()
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		_, v := listStyle.GetFrameSize()
		height := msg.Height - v - 6
		if height > 4 {
			m.List.SetSize(m.width, height)
			m.Sidebar.Height = height + 2
		}
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	m.refreshSidebar()
	return m, cmd
}

func (m *Model) View() string {
	header := renderColumnHeader(m.columns, m.width)

	table := listStyle.
		Border(lipgloss.RoundedBorder(), true, false, true, true).
		BorderForeground(lavender).
		Render(lipgloss.JoinVertical(lipgloss.Top, header, m.List.View()))

	body := lipgloss.JoinHorizontal(lipgloss.Top, table, sideBarStyle.Render(m.Sidebar.View()))

	help := helpStyle.Render("↑/↓ navigate ∙ q quit")

	return lipgloss.JoinVertical(lipgloss.Top, m.title, body, help)
}

// refreshSidebar re-renders the detail pane for the selected candidate.
func (m *Model) refreshSidebar() {
	selected := m.SelectedItem()
	if selected == nil {
		m.Sidebar.SetContent("no candidates to display")
		return
	}
	m.Sidebar.SetContent(RenderReport(selected.Src, selected.Dst, selected.Connections, selected.Report))
}

// SelectedItem returns the currently selected hunt result, or nil when the
// list is empty.
func (m *Model) SelectedItem() *Item {
	item, ok := m.List.SelectedItem().(Item)
	if !ok {
		return nil
	}
	return &item
}

type listDelegate struct {
	columns []column
}

func (d listDelegate) Height() int                             { return 1 }
func (d listDelegate) Spacing() int                            { return 0 }
func (d listDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d listDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(Item)
	if !ok {
		return
	}

	if m.Width() <= 0 {
		return
	}

	isSelected := index == m.Index()

	p := message.NewPrinter(language.English)

	// give each cell a right padding of 3 to keep them from running together
	style := lipgloss.NewStyle().PaddingRight(3)
	if isSelected {
		style = style.Background(surface0).Bold(true)
	}

	severityStyle := style.PaddingLeft(2).Foreground(severityColor(item.Report.Score)).Width(d.columns[0].width)
	severityCell := severityStyle.Render(Truncate(item.GetSeverity(), &severityStyle))

	scoreStyle := style.Foreground(severityColor(item.Report.Score)).Width(d.columns[1].width)
	scoreCell := scoreStyle.Render(item.GetScore())

	srcStyle := style.Foreground(defaultTextColor).Width(d.columns[2].width)
	srcCell := srcStyle.Render(Truncate(item.Src, &srcStyle))

	dstStyle := style.Foreground(defaultTextColor).Width(d.columns[3].width)
	dstCell := dstStyle.Render(Truncate(item.Dst, &dstStyle))

	connsStyle := style.Width(d.columns[4].width)
	connsCell := connsStyle.Render(p.Sprintf("%d", item.Connections))

	row := lipgloss.JoinHorizontal(lipgloss.Left, severityCell, scoreCell, srcCell, dstCell, connsCell)

	fmt.Fprintf(w, "%s", row)
}

// Truncate prevents text from exceeding its column width.
func Truncate(str string, style *lipgloss.Style) string {
	textwidth := uint(style.GetWidth() - style.GetPaddingLeft() - style.GetPaddingRight())
	return truncate.StringWithTail(str, textwidth, ellipsis)
}

func renderColumnHeader(columns []column, headerWidth int) string {
	var header string
	columnStyle := lipgloss.NewStyle().Foreground(defaultTextColor)

	for i, c := range columns {
		// set the width of the column, subtracting off the column border
		width := c.width - 3

		// the first column must start with a margin
		if i == 0 {
			width -= 2
			header += columnStyle.MarginLeft(2).Width(width).Render(c.name)
		} else {
			header += columnStyle.Width(width).Render(c.name)
		}

		// add a column border if not the last column
		if i < len(columns)-1 {
			header += columnStyle.Foreground(surface0).Render(" | ")
		}
	}

	return listHeaderStyle.Width(headerWidth).Render(header)
}

func getTableWidth(columns []column) int {
	width := 2
	for _, c := range columns {
		width += c.width
	}
	return width
}
