// Package tui is a small terminal browser over the article store: a list of
// recent articles on the left, the selected brief summary on the right.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"swvanews/internal/core"
	"swvanews/internal/persistence"
)

const feedLimit = 50

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1)
)

type articlesLoadedMsg struct {
	items []persistence.FeedArticle
	err   error
}

type model struct {
	articles persistence.ArticleRepository

	items       []persistence.FeedArticle
	selectedIdx int
	showDetail  bool
	width       int
	height      int
	err         error
	quitting    bool
}

func initialModel(articles persistence.ArticleRepository) model {
	return model{articles: articles}
}

func (m model) Init() tea.Cmd {
	return m.loadArticles
}

// loadArticles pulls the most recent feed rows. A nil day means the latest
// articles regardless of extraction date.
func (m model) loadArticles() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	items, err := m.articles.ListFeed(ctx, nil, feedLimit)
	return articlesLoadedMsg{items: items, err: err}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case articlesLoadedMsg:
		m.items = msg.items
		m.err = msg.err
		m.selectedIdx = 0

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.items)-1 {
				m.selectedIdx++
			}
		case "enter":
			if len(m.items) > 0 {
				m.showDetail = true
			}
		case "esc":
			m.showDetail = false
		case "r":
			return m, m.loadArticles
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return docStyle.Render(fmt.Sprintf("Failed to load articles: %v\n\n[r] Retry | [q] Quit", m.err))
	}

	paneWidth := m.width/2 - 5
	if paneWidth < 30 {
		paneWidth = 30
	}

	left := titleStyle.Render("Recent Articles") + "\n\n" + m.listView()
	right := titleStyle.Render("Summary") + "\n\n" + m.detailView()

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(paneWidth).Render(left),
		paneStyle.Width(paneWidth).Render(right))

	help := dimStyle.Render("\n[↑/k] Up | [↓/j] Down | [enter] Read | [esc] Back | [r] Reload | [q] Quit")
	return docStyle.Render(main + help)
}

func (m model) listView() string {
	if len(m.items) == 0 {
		return dimStyle.Render("No articles loaded.")
	}
	var out string
	for i, item := range m.items {
		line := fmt.Sprintf("%s %s", sectionTag(item.Article), item.Title)
		if i == m.selectedIdx {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		out += line + "\n"
	}
	return out
}

func (m model) detailView() string {
	if !m.showDetail || m.selectedIdx >= len(m.items) {
		return dimStyle.Render("Press enter to read the selected summary.")
	}
	item := m.items[m.selectedIdx]

	header := selectedStyle.Render(item.Title) + "\n"
	if item.Author != "" {
		header += dimStyle.Render("By "+item.Author) + "\n"
	}
	if item.DatePublished != nil {
		header += dimStyle.Render(item.DatePublished.Format("January 2, 2006")) + "\n"
	}

	body := item.SummaryText
	if body == "" {
		body = dimStyle.Render("No summary yet (status: " + string(item.Status) + ").")
	}
	return header + "\n" + body
}

func sectionTag(a core.Article) string {
	if a.Section == "" {
		return dimStyle.Render("[General]")
	}
	return dimStyle.Render("[" + a.Section + "]")
}

// Start runs the article browser until the user quits.
func Start(articles persistence.ArticleRepository) error {
	p := tea.NewProgram(initialModel(articles), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run tui: %w", err)
	}
	return nil
}
