package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tinytelemetry/displaylog/internal/model"
)

const absent = "-"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderStatus draws the newest records, oldest first, with a summary line.
func renderStatus(records []model.LogRecord, total int) string {
	summary := dimStyle.Render(fmt.Sprintf("showing %d of %d records", len(records), total))
	if len(records) == 0 {
		return summary
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("TIME", "IP", "BATTERY", "RESET", "SCREEN")

	for _, rec := range records {
		t.Row(rec.Time, rec.IP, orAbsent(rec.Battery), orAbsent(rec.Reset), orAbsent(rec.Screen))
	}

	return strings.Join([]string{t.Render(), summary}, "\n")
}

func orAbsent(v *string) string {
	if v == nil {
		return absent
	}
	if *v == "" {
		return `""`
	}
	return *v
}
