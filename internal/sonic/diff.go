package sonic

import (
	"strings"
)

// Diff returns a line-oriented comparison of two rendered config
// documents, "" when they are identical. Unchanged leading and
// trailing lines are trimmed; the changed middle is shown as removed
// ("-") and added ("+") lines.
func Diff(oldDoc, newDoc string) string {
	if oldDoc == newDoc {
		return ""
	}

	oldLines := strings.Split(oldDoc, "\n")
	newLines := strings.Split(newDoc, "\n")

	start := 0
	for start < len(oldLines) && start < len(newLines) && oldLines[start] == newLines[start] {
		start++
	}

	oldEnd, newEnd := len(oldLines), len(newLines)
	for oldEnd > start && newEnd > start && oldLines[oldEnd-1] == newLines[newEnd-1] {
		oldEnd--
		newEnd--
	}

	var b strings.Builder
	for _, line := range oldLines[start:oldEnd] {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, line := range newLines[start:newEnd] {
		b.WriteString("+ ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
