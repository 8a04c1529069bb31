package main

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// displayLabel renders enum-ish values (statuses, verdicts, priorities)
// for table output.
func displayLabel(value string) string {
	if value == "" {
		return "-"
	}
	return titleCaser.String(value)
}

// colorVerdict highlights verdicts when stdout is a terminal.
func colorVerdict(verdict string) string {
	if !stdoutIsTerminal() {
		return displayLabel(verdict)
	}
	label := displayLabel(verdict)
	switch verdict {
	case "genuine":
		return text.FgGreen.Sprint(label)
	case "suspicious":
		return text.FgYellow.Sprint(label)
	case "fake":
		return text.FgRed.Sprint(label)
	default:
		return label
	}
}

func colorStatus(status string) string {
	if !stdoutIsTerminal() {
		return displayLabel(status)
	}
	label := displayLabel(status)
	switch status {
	case "completed":
		return text.FgGreen.Sprint(label)
	case "failed":
		return text.FgRed.Sprint(label)
	case "running":
		return text.FgCyan.Sprint(label)
	default:
		return label
	}
}
