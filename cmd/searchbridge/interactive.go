package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/emberai/search-bridge/engine"
	"github.com/emberai/search-bridge/errors"
	"github.com/emberai/search-bridge/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateQuery modelState = iota
	stateResults
	stateDocument
)

type hitEntry struct {
	docID string
	score float64
	title string
}

type interactiveModel struct {
	err      error
	sess     *session.Session
	indexDir string
	input    textinput.Model
	hits     []hitEntry
	docText  string
	total    uint64
	numDocs  uint64
	idx      uint64
	searcher uint64
	selected int
	state    modelState
}

type openedMsg struct {
	err      error
	sess     *session.Session
	idx      uint64
	searcher uint64
	numDocs  uint64
}

type searchResultMsg struct {
	err   error
	hits  []hitEntry
	total uint64
}

type documentMsg struct {
	err  error
	text string
}

func newInteractiveModel(indexDir string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `title:mice AND year:[1930 TO 1940]`
	ti.Prompt = "query> "
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{indexDir: indexDir, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.openIndex
}

func (m *interactiveModel) openIndex() tea.Msg {
	sess, err := session.New(session.WithQueryCache(0), session.WithAutoReload())
	if err != nil {
		return openedMsg{err: err}
	}
	idx, err := sess.OpenIndex(m.indexDir)
	if err != nil {
		sess.Close()
		return openedMsg{err: err}
	}
	rdr, err := sess.Reader(idx)
	if err != nil {
		sess.Close()
		return openedMsg{err: err}
	}
	sr, err := sess.Searcher(rdr)
	if err != nil {
		sess.Close()
		return openedMsg{err: err}
	}
	n, err := sess.NumDocs(sr)
	if err != nil {
		sess.Close()
		return openedMsg{err: err}
	}
	return openedMsg{sess: sess, idx: idx, searcher: sr, numDocs: n}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.sess != nil {
				m.sess.Close()
			}
			return m, tea.Quit

		case "q":
			if m.state == stateQuery {
				break
			}
			if m.sess != nil {
				m.sess.Close()
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateResults && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateResults && m.selected < len(m.hits)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateQuery:
				if strings.TrimSpace(m.input.Value()) != "" {
					return m, m.search
				}
			case stateResults:
				if len(m.hits) > 0 {
					return m, m.fetchDocument
				}
			case stateDocument:
				m.state = stateResults
				m.docText = ""
			}

		case "esc":
			switch m.state {
			case stateResults:
				m.state = stateQuery
				m.hits = nil
				m.err = nil
				m.input.Focus()
			case stateDocument:
				m.state = stateResults
				m.docText = ""
			}
		}

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		m.idx = msg.idx
		m.searcher = msg.searcher
		m.numDocs = msg.numDocs

	case searchResultMsg:
		m.err = msg.err
		m.hits = msg.hits
		m.total = msg.total
		m.selected = 0
		if msg.err == nil {
			m.state = stateResults
			m.input.Blur()
		}

	case documentMsg:
		m.err = msg.err
		m.docText = msg.text
		if msg.err == nil {
			m.state = stateDocument
		}
	}

	if m.state == stateQuery {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) search() tea.Msg {
	ctx := context.Background()
	q, err := m.sess.ParseQuery(m.idx, m.input.Value())
	if err != nil {
		return searchResultMsg{err: err}
	}
	defer m.sess.Release(q)

	res, err := m.sess.Search(ctx, m.searcher, q, engine.SearchOptions{Limit: 20})
	if err != nil {
		return searchResultMsg{err: err}
	}
	hits := make([]hitEntry, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, hitEntry{docID: h.DocID, score: h.Score, title: m.firstStoredText(h.DocID)})
	}
	return searchResultMsg{hits: hits, total: res.Total}
}

// firstStoredText gives each result row something readable: the first
// stored text value found in the document, or the raw identifier.
func (m *interactiveModel) firstStoredText(docID string) string {
	docH, err := m.sess.Doc(context.Background(), m.searcher, docID)
	if err != nil {
		return docID
	}
	defer m.sess.Release(docH)
	fields, err := m.sess.DocumentFields(docH)
	if err != nil {
		return docID
	}
	for _, vals := range fields {
		for _, v := range vals {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return docID
}

func (m *interactiveModel) fetchDocument() tea.Msg {
	hit := m.hits[m.selected]
	docH, err := m.sess.Doc(context.Background(), m.searcher, hit.docID)
	if err != nil {
		return documentMsg{err: err}
	}
	defer m.sess.Release(docH)

	fields, err := m.sess.DocumentFields(docH)
	if err != nil {
		return documentMsg{err: err}
	}
	var b strings.Builder
	for name, vals := range fields {
		b.WriteString(fieldStyle.Render(name))
		b.WriteString(": ")
		for i, v := range vals {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%v", v)
		}
		b.WriteString("\n")
	}
	return documentMsg{text: b.String()}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.sess == nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.sess == nil {
		return "Opening index..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Search"))
	b.WriteString(fmt.Sprintf(" %s (%d documents)\n\n", m.indexDir, m.numDocs))

	switch m.state {
	case stateQuery:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(renderQueryError(m.err, m.input.Value()))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("enter search • ctrl+c quit"))

	case stateResults:
		b.WriteString(fmt.Sprintf("%d of %d hits for %q\n\n", len(m.hits), m.total, m.input.Value()))
		for i, hit := range m.hits {
			line := fmt.Sprintf("%s  %s", scoreStyle.Render(fmt.Sprintf("%.4f", hit.score)), hit.title)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • esc new query • q quit"))

	case stateDocument:
		b.WriteString(m.docText)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

// renderQueryError points at the offending byte when the parser
// reported one.
func renderQueryError(err error, src string) string {
	var be *errors.Error
	if errorsAs(err, &be) && be.Kind == errors.KindQueryParse && be.Position >= 0 && be.Position <= len(src) {
		marker := strings.Repeat(" ", be.Position) + "^"
		return errorStyle.Render(fmt.Sprintf("  %s\n  %s\n%v", src, marker, err))
	}
	return errorStyle.Render(fmt.Sprintf("Error: %v", err))
}

func errorsAs(err error, target **errors.Error) bool {
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func runInteractive(indexDir string) error {
	p := tea.NewProgram(newInteractiveModel(indexDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
