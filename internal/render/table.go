package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/igz0/resonite-online-checker-cli/internal/status"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Table renders the friend status table, one row per user in the order the
// reconciler hands them over.
func Table(entries []status.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("User", "Status", "World")

	for _, e := range entries {
		t.Row(e.UserID, e.Status, e.WorldName)
	}

	return t.Render()
}
