package database

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/lib/pq"
)

// Disposition is what the executor does with a failed statement.
type Disposition int

const (
	// DispositionFatal aborts the run.
	DispositionFatal Disposition = iota
	// DispositionSkip records the statement as already applied and continues.
	DispositionSkip
)

func (d Disposition) String() string {
	if d == DispositionSkip {
		return "skip"
	}
	return "fatal"
}

// Classifier decides whether a statement error means the change is already in place.
type Classifier interface {
	Classify(stmt Statement, err error) Disposition
}

// SkipRule says when an SQLSTATE is treated as "already applied".
type SkipRule int

const (
	// SkipAlways skips regardless of the statement.
	SkipAlways SkipRule = iota
	// SkipOnDrop skips only when the statement removes an object of a kind
	// listed for the code in DropTargets.
	SkipOnDrop
)

// SkipCodes maps PostgreSQL SQLSTATE codes to skip rules. Codes not listed are fatal.
var SkipCodes = map[string]SkipRule{ //nolint:gochecknoglobals
	"42P07": SkipAlways, // duplicate_table, also raised for an existing index or constraint index
	"42710": SkipAlways, // duplicate_object
	"42701": SkipAlways, // duplicate_column
	"42P06": SkipAlways, // duplicate_schema
	"42723": SkipAlways, // duplicate_function
	"23505": SkipAlways, // unique_violation
	"42P01": SkipOnDrop, // undefined_table
	"42704": SkipOnDrop, // undefined_object
	"42703": SkipOnDrop, // undefined_column
	"42883": SkipOnDrop, // undefined_function
	"3F000": SkipOnDrop, // invalid_schema_name
}

// DropTargets lists, per SQLSTATE, the kinds of dropped object whose absence
// the code reports. ALTER TABLE on a missing table raises 42P01, which is not
// listed for CONSTRAINT or COLUMN and so stays fatal.
var DropTargets = map[string][]string{ //nolint:gochecknoglobals
	"42P01": {"TABLE", "VIEW", "SEQUENCE"},
	"42704": {"INDEX", "TYPE", "TRIGGER", "CONSTRAINT"},
	"42703": {"COLUMN"},
	"42883": {"FUNCTION"},
	"3F000": {"SCHEMA"},
}

// MessageMarkers are matched case-insensitively against errors that carry no
// SQLSTATE. Both English and Portuguese phrasings are accepted.
var MessageMarkers = []string{ //nolint:gochecknoglobals
	"already exists",
	"duplicate key",
	"já existe",
	"já foi removida",
}

var (
	dropPattern      = regexp.MustCompile(`(?i)^\s*DROP\s+(TABLE|INDEX|TYPE|TRIGGER|FUNCTION|SCHEMA|VIEW|SEQUENCE)\b`)
	alterDropPattern = regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\b.*\bDROP\s+(CONSTRAINT|COLUMN)\b`)
)

// SQLStateClassifier classifies by SQLSTATE first and falls back to message
// markers only when the error has no code.
type SQLStateClassifier struct {
	Codes       map[string]SkipRule
	DropTargets map[string][]string
	Markers     []string
}

// NewSQLStateClassifier returns a classifier backed by SkipCodes, DropTargets
// and MessageMarkers.
func NewSQLStateClassifier() *SQLStateClassifier {
	return &SQLStateClassifier{Codes: SkipCodes, DropTargets: DropTargets, Markers: MessageMarkers}
}

// Classify implements Classifier.
func (c *SQLStateClassifier) Classify(stmt Statement, err error) Disposition {
	if err == nil {
		return DispositionFatal
	}

	if code, ok := SQLState(err); ok {
		rule, found := c.Codes[code]
		if !found {
			return DispositionFatal
		}
		if rule == SkipOnDrop {
			kind, isDrop := DropTarget(stmt.Text)
			if !isDrop || !slices.Contains(c.DropTargets[code], kind) {
				return DispositionFatal
			}
		}
		return DispositionSkip
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range c.Markers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return DispositionSkip
		}
	}

	return DispositionFatal
}

// SQLState extracts the five-character SQLSTATE code from a driver error.
func SQLState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Code != ""
	}

	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		code := coded.SQLState()
		return code, code != ""
	}

	return "", false
}

// DropTarget returns the kind of object the statement removes, in upper
// case. Only statements starting with DROP <kind> and ALTER TABLE statements
// with a DROP CONSTRAINT or DROP COLUMN clause count.
func DropTarget(text string) (string, bool) {
	if m := dropPattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), true
	}

	if m := alterDropPattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), true
	}

	return "", false
}
