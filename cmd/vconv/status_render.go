package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"vconv/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusColors = map[statusKind]string{
	statusInfo:  "\x1b[34m",
	statusOK:    "\x1b[32m",
	statusWarn:  "\x1b[33m",
	statusError: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

type statusLine struct {
	label   string
	kind    statusKind
	message string
}

// statusSection is a titled block of aligned status lines.
type statusSection struct {
	title string
	lines []statusLine
}

// renderStatus lays out `vconv status`: the daemon and queue first, then
// the external tools conversions depend on.
func renderStatus(status *api.DaemonStatus, colorize bool) []string {
	sections := []statusSection{{title: "vconv", lines: daemonStatusLines(status)}}
	if len(status.Dependencies) > 0 {
		deps := statusSection{title: "Dependencies"}
		for _, dep := range status.Dependencies {
			deps.lines = append(deps.lines, dependencyStatusLine(dep))
		}
		sections = append(sections, deps)
	}

	var out []string
	for i, section := range sections {
		if i > 0 {
			out = append(out, "")
		}
		out = append(out, section.render(colorize)...)
	}
	return out
}

func daemonStatusLines(status *api.DaemonStatus) []statusLine {
	history := statusLine{
		label:   "History",
		kind:    statusInfo,
		message: fmt.Sprintf("%s primary, %s fallback", status.HistoryDriver, status.HistoryFallback),
	}
	if !status.Running {
		return []statusLine{
			{label: "Daemon", kind: statusWarn, message: "not running"},
			history,
		}
	}

	mode := statusLine{label: "Mode", kind: statusInfo, message: formatStatusLabel(status.Mode)}
	if status.ActiveJob != "" {
		mode.kind = statusOK
		mode.message = fmt.Sprintf("%s (job %s)", mode.message, shortID(status.ActiveJob))
	}
	q := status.Queue
	queue := statusLine{
		label:   "Queue",
		kind:    statusInfo,
		message: fmt.Sprintf("%d pending, %d converting, %d completed, %d failed", q.Pending, q.Converting, q.Completed, q.Failed),
	}
	if q.Failed > 0 {
		queue.kind = statusWarn
	}
	return []statusLine{
		{label: "Daemon", kind: statusOK, message: fmt.Sprintf("running (pid %d)", status.PID)},
		mode,
		queue,
		history,
	}
}

func dependencyStatusLine(dep api.DependencyStatus) statusLine {
	if dep.Available {
		return statusLine{label: dep.Name, kind: statusOK, message: dep.Command}
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	return statusLine{label: dep.Name, kind: kind, message: strings.TrimSpace(dep.Detail)}
}

func (s statusSection) render(colorize bool) []string {
	header := fmt.Sprintf("== %s ==", s.title)
	rule := strings.Repeat("-", len(header))
	if colorize {
		header = statusColors[statusInfo] + header + ansiReset
		rule = statusColors[statusInfo] + rule + ansiReset
	}
	width := 0
	for _, line := range s.lines {
		width = max(width, len(line.label)+1)
	}
	out := []string{header, rule}
	for _, line := range s.lines {
		out = append(out, line.render(width, colorize))
	}
	return out
}

func (l statusLine) render(width int, colorize bool) string {
	text := fmt.Sprintf("  %-*s [%s]", width, l.label+":", l.kind)
	if l.message != "" {
		text += " " + l.message
	}
	if colorize {
		return statusColors[l.kind] + text + ansiReset
	}
	return text
}

func (k statusKind) String() string {
	switch k {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
