package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"vconv/internal/api"
)

// column describes one table column. maxWidth of 0 leaves it unbounded;
// longer values are cut at maxWidth.
type column struct {
	title    string
	align    text.Align
	maxWidth int
}

var queueColumns = []column{
	{title: "ID", align: text.AlignLeft},
	{title: "Source", align: text.AlignLeft, maxWidth: 32},
	{title: "Formats", align: text.AlignLeft},
	{title: "Status", align: text.AlignLeft, maxWidth: 40},
	{title: "Progress", align: text.AlignRight},
	{title: "Size", align: text.AlignRight},
	{title: "Added", align: text.AlignLeft},
}

var historyColumns = []column{
	{title: "ID", align: text.AlignLeft},
	{title: "Original", align: text.AlignLeft, maxWidth: 32},
	{title: "Converted", align: text.AlignLeft, maxWidth: 32},
	{title: "Size", align: text.AlignRight},
	{title: "Finished", align: text.AlignLeft},
	{title: "Note", align: text.AlignLeft},
}

func renderQueueTable(jobs []api.Job) string {
	rows := make([]table.Row, 0, len(jobs))
	var converting, failed int
	for _, job := range jobs {
		status := formatStatusLabel(job.Status)
		switch job.Status {
		case "converting":
			converting++
		case "error":
			failed++
			if job.Error != "" {
				status = fmt.Sprintf("%s (%s)", status, job.Error)
			}
		}
		rows = append(rows, table.Row{
			shortID(job.ID),
			job.SourceName,
			strings.ToUpper(job.SourceFormat) + " → " + strings.ToUpper(job.TargetFormat),
			status,
			fmt.Sprintf("%d%%", job.Progress),
			formatBytes(job.SourceSize),
			formatDisplayTime(job.CreatedAt),
		})
	}
	footer := fmt.Sprintf("%d %s, %d converting, %d failed", len(jobs), plural(len(jobs), "job", "jobs"), converting, failed)
	return renderTable(queueColumns, rows, footer)
}

func renderHistoryTable(entries []api.HistoryEntry) string {
	rows := make([]table.Row, 0, len(entries))
	var degraded int
	for _, entry := range entries {
		note := ""
		if entry.Degraded {
			degraded++
			note = "metadata only"
		}
		rows = append(rows, table.Row{
			shortID(entry.ID),
			entry.OriginalFilename,
			entry.ConvertedFilename,
			formatBytes(entry.ResultSize),
			formatDisplayTime(entry.Timestamp),
			note,
		})
	}
	footer := fmt.Sprintf("%d %s", len(entries), plural(len(entries), "entry", "entries"))
	if degraded > 0 {
		footer += fmt.Sprintf(", %d without a downloadable file", degraded)
	}
	return renderTable(historyColumns, rows, footer)
}

func renderTable(columns []column, rows []table.Row, footer string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: col.align, AlignHeader: text.AlignLeft}
		if col.maxWidth > 0 {
			configs[i].WidthMax = col.maxWidth
			configs[i].WidthMaxEnforcer = text.Trim
		}
	}
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.SetColumnConfigs(configs)
	if footer != "" {
		tw.SetCaption(footer)
	}
	return tw.Render()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
