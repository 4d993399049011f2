package dashboard

import "github.com/b0ase/cardlog/internal/model"

// View is a display surface. The controller never calls it concurrently.
type View interface {
	RenderCounters(c Counters)
	// RenderRows receives the full visible table, newest first.
	RenderRows(rows []model.LogRecord)
	ShowNotification(msg string)
	HideNotification()
}
