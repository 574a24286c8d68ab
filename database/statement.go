package database

import "strings"

// StepKind tells the runner how a step turns into statements.
type StepKind int

const (
	// StepScript is plain SQL text split on every semicolon.
	StepScript StepKind = iota
	// StepBlock is a compound body (DO $$ ... $$, a function) executed verbatim as one statement.
	StepBlock
	// StepExec is a single parameterized statement.
	StepExec
)

func (k StepKind) String() string {
	switch k {
	case StepScript:
		return "script"
	case StepBlock:
		return "block"
	case StepExec:
		return "exec"
	default:
		return "unknown"
	}
}

// Step is one entry of a migration descriptor.
type Step struct {
	Kind StepKind
	SQL  string
	Args []any
}

// Script returns a step whose text is split into statements.
func Script(sql string) Step {
	return Step{Kind: StepScript, SQL: sql}
}

// Block returns an atomic step that bypasses the splitter.
func Block(sql string) Step {
	return Step{Kind: StepBlock, SQL: sql}
}

// Exec returns a parameterized single-statement step.
func Exec(sql string, args ...any) Step {
	return Step{Kind: StepExec, SQL: sql, Args: args}
}

// Statement is one executable unit, numbered by its position in the descriptor.
type Statement struct {
	Sequence int
	Text     string
	Args     []any
}

// Summary returns the first line of the statement, shortened to at most 80
// characters for console output.
func (s Statement) Summary() string {
	const maxLen = 80

	text := strings.TrimSpace(s.Text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i]) + " ..."
	}
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen-3]) + "..."
	}

	return text
}

// Descriptor is a named, ordered list of steps plus the checks that confirm
// the end state after the steps ran.
type Descriptor struct {
	Name        string
	Description string
	Steps       []Step
	Verify      Verification
}

// Statements flattens the steps into statements in declaration order.
// Sequence numbers start at 1 and are contiguous.
func (d Descriptor) Statements() []Statement {
	var statements []Statement

	for _, step := range d.Steps {
		switch step.Kind {
		case StepScript:
			for _, text := range Split(step.SQL) {
				statements = append(statements, Statement{Text: text})
			}
		case StepBlock, StepExec:
			text := strings.TrimSpace(step.SQL)
			if text == "" {
				continue
			}
			statements = append(statements, Statement{Text: text, Args: step.Args})
		}
	}

	for i := range statements {
		statements[i].Sequence = i + 1
	}

	return statements
}
