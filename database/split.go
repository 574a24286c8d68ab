package database

import "strings"

const commentPrefix = "--"

// Split breaks a script into trimmed, non-empty statements using ';' as the
// delimiter. Whole-line "--" comments are removed before splitting, so a ';'
// inside such a comment never ends a statement. There is no notion of
// quoting: a ';' inside a string literal or a dollar-quoted body ends the
// statement. Such bodies must be passed as Block steps or wrapped in
// StatementBegin/StatementEnd markers.
func Split(script string) []string {
	chunks := strings.Split(stripComments(script), ";")

	statements := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, strings.TrimRight(line, " \t\r"))
		}

		if text := strings.TrimSpace(strings.Join(lines, "\n")); text != "" {
			statements = append(statements, text)
		}
	}

	return statements
}

func stripComments(script string) string {
	lines := strings.Split(script, "\n")

	code := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), commentPrefix) {
			continue
		}
		code = append(code, line)
	}

	return strings.Join(code, "\n")
}
