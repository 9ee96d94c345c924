// Package documents lists indexed reports in a table. A report can be
// removed or picked as the scope for the next questions.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

var ErrNoDocumentService = errors.New("document service not available")

// chrome is the number of rows taken by everything but the table body.
const chrome = 8

type View struct {
	styles *styles.Styles
	keymap *keymap.KeyMap
	svc    driving.DocumentService
	ctx    context.Context

	table     table.Model
	documents []domain.Document

	loading    bool
	confirming bool
	err        error

	width, height int
}

func NewView(s *styles.Styles, km *keymap.KeyMap, svc driving.DocumentService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	ts := table.DefaultStyles()
	ts.Header = ts.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	ts.Selected = s.Selected

	v := &View{
		styles: s,
		keymap: km,
		svc:    svc,
		ctx:    context.Background(),
		table:  table.New(table.WithFocused(true), table.WithStyles(ts)),
	}
	v.SetDimensions(80, 24)
	return v
}

func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init reloads the list.
func (v *View) Init() tea.Cmd {
	v.confirming = false
	return v.reload()
}

func (v *View) reload() tea.Cmd {
	v.loading = true
	svc, ctx := v.svc, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentsLoaded{Err: ErrNoDocumentService}
		}
		docs, err := svc.List(ctx)
		return messages.DocumentsLoaded{Documents: docs, Err: err}
	}
}

func (v *View) remove(id string) tea.Cmd {
	svc, ctx := v.svc, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentRemoved{DocumentID: id, Err: ErrNoDocumentService}
		}
		return messages.DocumentRemoved{DocumentID: id, Err: svc.Remove(ctx, id)}
	}
}

func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		if v.confirming {
			return v, v.confirm(msg.String())
		}
		return v, v.handleKey(msg.String())

	case messages.DocumentsLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.setDocuments(msg.Documents)
		}

	case messages.DocumentRemoved:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		return v, v.reload()

	case messages.ErrorOccurred:
		v.err = msg.Err
	}
	return v, nil
}

// handleKey navigates itself rather than forwarding to the table, whose
// default bindings claim d for half-page down.
func (v *View) handleKey(k string) tea.Cmd {
	switch {
	case keymap.Matches(k, v.keymap.Back):
		return func() tea.Msg { return messages.ViewChanged{View: messages.ViewMenu} }
	case keymap.Matches(k, v.keymap.Up):
		v.table.MoveUp(1)
	case keymap.Matches(k, v.keymap.Down):
		v.table.MoveDown(1)
	case keymap.Matches(k, v.keymap.Reload):
		return v.reload()
	case keymap.Matches(k, v.keymap.Scope), keymap.Matches(k, v.keymap.Select):
		if doc := v.SelectedDocument(); doc != nil {
			scope := messages.ScopeSelected{DocumentID: doc.ID, Filename: doc.Filename}
			return func() tea.Msg { return scope }
		}
	case keymap.Matches(k, v.keymap.Remove):
		v.confirming = v.SelectedDocument() != nil
	}
	return nil
}

func (v *View) confirm(k string) tea.Cmd {
	v.confirming = false
	doc := v.SelectedDocument()
	if k != "y" || doc == nil {
		return nil
	}
	return v.remove(doc.ID)
}

func (v *View) setDocuments(docs []domain.Document) {
	v.documents = docs
	rows := make([]table.Row, len(docs))
	for i := range docs {
		rows[i] = row(&docs[i])
	}
	v.table.SetRows(rows)
	if v.table.Cursor() >= len(docs) {
		v.table.SetCursor(max(len(docs)-1, 0))
	}
}

func row(d *domain.Document) table.Row {
	status := string(d.Status)
	switch {
	case d.Status == domain.DocumentStatusFailed && d.Error != "":
		status += " (" + d.Error + ")"
	case d.Warning != "":
		status += " !" + d.Warning
	}
	uploaded := "-"
	if !d.UploadedAt.IsZero() {
		uploaded = d.UploadedAt.Format("2006-01-02 15:04")
	}
	return table.Row{d.Filename, status, strconv.Itoa(d.PageCount), strconv.Itoa(d.ChunkCount), uploaded}
}

func (v *View) View() string {
	out := v.styles.Title.Render(fmt.Sprintf("Documents (%d)", len(v.documents))) + "\n\n"

	switch {
	case v.loading:
		out += v.styles.Muted.Render("Loading documents...") + "\n\n"
	case v.err != nil:
		out += v.styles.Error.Render("Error: "+domain.ReportOf(v.err).Message) + "\n\n"
	}

	if len(v.documents) == 0 {
		if !v.loading {
			out += v.styles.Muted.Render("No documents indexed. Use 'finrag index <file.pdf>' or upload through the API.") + "\n\n"
		}
		return out + v.help()
	}

	out += v.table.View() + "\n\n"
	if doc := v.SelectedDocument(); v.confirming && doc != nil {
		return out + v.styles.Warning.Render(fmt.Sprintf("Remove %s and its chunks? [y] yes  [any key] cancel", doc.Filename))
	}
	return out + v.help()
}

func (v *View) help() string {
	return v.styles.Help.Render("[↑/↓] navigate  [s/enter] ask this document  [d] remove  [r] reload  [esc] back")
}

// SetDimensions resizes the table; the filename column takes what the
// fixed columns leave.
func (v *View) SetDimensions(width, height int) {
	v.width, v.height = width, height
	const fixed = 28 + 7 + 7 + 17
	v.table.SetColumns([]table.Column{
		{Title: "File", Width: max(width-fixed-10, 16)},
		{Title: "Status", Width: 28},
		{Title: "Pages", Width: 7},
		{Title: "Chunks", Width: 7},
		{Title: "Uploaded", Width: 17},
	})
	v.table.SetHeight(max(height-chrome, 3))
	v.table.SetWidth(width)
}

func (v *View) Documents() []domain.Document { return v.documents }

func (v *View) SelectedIndex() int { return v.table.Cursor() }

// SelectedDocument returns the highlighted document, or nil when the list
// is empty.
func (v *View) SelectedDocument() *domain.Document {
	if c := v.table.Cursor(); c >= 0 && c < len(v.documents) {
		return &v.documents[c]
	}
	return nil
}

func (v *View) ConfirmingRemove() bool { return v.confirming }

func (v *View) Err() error { return v.err }
