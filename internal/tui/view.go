package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/b0ase/cardlog/internal/dashboard"
	"github.com/b0ase/cardlog/internal/model"
)

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// View adapts a bubbletea program to dashboard.View. Each call becomes a
// message handled by Model.Update on the program's goroutine.
type View struct {
	out Sender
}

func NewView(out Sender) *View {
	return &View{out: out}
}

func (v *View) RenderCounters(c dashboard.Counters) {
	v.out.Send(countersMsg(c))
}

func (v *View) RenderRows(rows []model.LogRecord) {
	// the controller may reuse its slice after we return
	v.out.Send(rowsMsg(append([]model.LogRecord(nil), rows...)))
}

func (v *View) ShowNotification(msg string) {
	v.out.Send(notifyMsg(msg))
}

func (v *View) HideNotification() {
	v.out.Send(hideMsg{})
}

var _ dashboard.View = (*View)(nil)
