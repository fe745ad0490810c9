// # cmd/reviewd/ui.go
package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reviewd/internal/analyzer"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type model struct {
	list    list.Model
	files   int
	summary analyzer.Summary
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("%d files | %d findings", m.files, m.summary.Total))

	var verdict string
	if m.summary.Errors == 0 && m.summary.Bugs == 0 {
		verdict = successStyle.Render("✅ No blocking issues")
	} else {
		verdict = fmt.Sprintf("⚠️  %s | %s",
			errorStyle.Render(fmt.Sprintf("%d Errors", m.summary.Errors)),
			bugStyle.Render(fmt.Sprintf("%d Bugs", m.summary.Bugs)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Code Review Findings"), status, verdict)
	return docStyle.Render(header + "\n" + m.list.View())
}

func newReviewModel(results []fileResult) model {
	items := []list.Item{}
	for _, res := range results {
		for _, d := range res.report.Issues {
			loc := "whole file"
			if d.Line != nil {
				loc = fmt.Sprintf("line %d", *d.Line)
			}
			items = append(items, item{
				title: d.Message,
				desc:  fmt.Sprintf("%s | %s | %s", d.Severity, res.path, loc),
			})
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Findings"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return model{
		list:    l,
		files:   len(results),
		summary: totalSummary(results),
	}
}

func runUI(results []fileResult) error {
	m := newReviewModel(results)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
