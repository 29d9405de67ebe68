// Package audit is the interactive browser for the posting cache and the
// alert ledger: which jobs were discovered, who was alerted, and how.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/outbid/outbid/internal/model"
)

// Lines per posting item in the list view (title + subtitle + blank separator).
const postingItemHeight = 3

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(12)

	ledgerKindStyle = map[model.AlertKind]lipgloss.Style{
		model.AlertProposal:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.AlertPlaceholder: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.AlertLimit:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
)

type auditModel struct {
	snap *snapshot

	listViewport   viewport.Model
	detailViewport viewport.Model
	activePane     int // 0=list, 1=detail
	cursor         int
	width          int
	height         int
	ready          bool
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePane = 1 - m.activePane
		case "up", "k":
			if m.activePane == 0 {
				m.moveCursor(-1)
			} else {
				m.detailViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.activePane == 0 {
				m.moveCursor(1)
			} else {
				m.detailViewport.ScrollDown(1)
			}
		case "pgup":
			if m.activePane == 1 {
				m.detailViewport.HalfPageUp()
			}
		case "pgdown":
			if m.activePane == 1 {
				m.detailViewport.HalfPageDown()
			}
		}
	}
	return m, nil
}

func (m *auditModel) moveCursor(delta int) {
	next := m.cursor + delta
	if next < 0 || next >= len(m.snap.postings) {
		return
	}
	m.cursor = next
	m.syncViewports()
}

func (m *auditModel) recalcLayout() {
	paneHeight := m.height - 4 // borders + status bar
	if paneHeight < 3 {
		paneHeight = 3
	}
	listWidth := m.width/2 - 2
	detailWidth := m.width - listWidth - 6

	m.listViewport = viewport.New(listWidth, paneHeight)
	m.detailViewport = viewport.New(detailWidth, paneHeight)
	m.syncViewports()
}

func (m *auditModel) syncViewports() {
	m.listViewport.SetContent(m.renderList())
	m.listViewport.SetYOffset(m.cursor * postingItemHeight)
	m.detailViewport.SetContent(m.renderDetail())
	m.detailViewport.GotoTop()
}

func (m auditModel) renderList() string {
	if len(m.snap.postings) == 0 {
		return "No postings recorded yet."
	}
	var b strings.Builder
	for i, p := range m.snap.postings {
		title := p.Title
		subtitle := fmt.Sprintf("%s · %d alert(s)", p.DiscoveredAt.Format("Jan 2 15:04"), len(m.snap.alerts[p.ID]))
		if i == m.cursor {
			b.WriteString(selectedTitleStyle.Render(" "+title+" ") + "\n")
			b.WriteString(selectedSubtitleStyle.Render(" "+subtitle+" ") + "\n\n")
		} else {
			b.WriteString(itemTitleStyle.Render(title) + "\n")
			b.WriteString(itemSubtitleStyle.Render(subtitle) + "\n\n")
		}
	}
	return b.String()
}

func (m auditModel) renderDetail() string {
	if len(m.snap.postings) == 0 {
		return ""
	}
	p := m.snap.postings[m.cursor]

	var b strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label) + value + "\n")
	}
	row("Title", p.Title)
	row("Link", p.Link)
	switch p.RateType {
	case model.RateHourly:
		row("Rate", fmt.Sprintf("$%d-$%d/hr", p.BudgetMin, p.BudgetMax))
	case model.RateFixed:
		row("Budget", fmt.Sprintf("$%d fixed", p.BudgetMax))
	}
	row("Level", p.ExperienceLevel)
	row("Skills", strings.Join(p.Tags, ", "))
	row("Posted", p.PostedLabel)
	row("Seen", p.DiscoveredAt.Format(time.RFC1123))
	if p.Description != "" {
		b.WriteString("\n" + p.Description + "\n")
	}

	b.WriteString("\n" + itemTitleStyle.Render("Alerts") + "\n")
	records := m.snap.alerts[p.ID]
	if len(records) == 0 {
		b.WriteString(itemSubtitleStyle.Render("none sent") + "\n")
	}
	for _, r := range records {
		kind := string(r.Kind)
		if style, ok := ledgerKindStyle[r.Kind]; ok {
			kind = style.Render(kind)
		}
		b.WriteString(fmt.Sprintf("%s  subscriber %d  %s\n",
			r.SentAt.Format("Jan 2 15:04:05"), r.SubscriberID, kind))
	}
	return b.String()
}

func (m auditModel) View() string {
	if !m.ready {
		return "loading..."
	}

	listHeader := inactiveHeaderStyle.Render(fmt.Sprintf("Postings (%d)", len(m.snap.postings)))
	detailHeader := inactiveHeaderStyle.Render("Detail")
	listBorder, detailBorder := inactiveBorderStyle, inactiveBorderStyle
	if m.activePane == 0 {
		listHeader = activeHeaderStyle.Render(fmt.Sprintf("Postings (%d)", len(m.snap.postings)))
		listBorder = activeBorderStyle
	} else {
		detailHeader = activeHeaderStyle.Render("Detail")
		detailBorder = activeBorderStyle
	}

	left := listBorder.Render(listHeader + "\n" + m.listViewport.View())
	right := detailBorder.Render(detailHeader + "\n" + m.detailViewport.View())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	status := statusBarStyle.Render(fmt.Sprintf(
		"%d alerts total (%d in last 24h)   tab switch pane  j/k navigate  q quit",
		m.snap.stats.Total, m.snap.stats.Recent))
	return panes + "\n" + status
}

// Run loads the audit snapshot from store and starts the TUI.
func Run(store Store) error {
	snap, err := loadSnapshot(store)
	if err != nil {
		return err
	}
	p := tea.NewProgram(auditModel{snap: snap}, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
