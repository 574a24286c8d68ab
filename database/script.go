package database

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

const (
	markerBegin = "-- +migrate StatementBegin"
	markerEnd   = "-- +migrate StatementEnd"
)

var (
	errUnterminatedBlock = errors.New("StatementBegin without matching StatementEnd")
	errNestedBlock       = errors.New("nested StatementBegin")
	errUnexpectedEnd     = errors.New("StatementEnd without StatementBegin")
	errEmptyBlock        = errors.New("empty statement block")
)

// ParseScripts parses SQL script files from an fs.FS root.
// Files must have .sql extension; directories and other files are ignored.
// Files are read in lexicographic order and their steps concatenated.
func ParseScripts(fsys fs.FS) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts directory: %w", err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	slices.Sort(filenames)

	var steps []Step
	for _, filename := range filenames {
		fileSteps, err := parseScriptFile(fsys, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to parse script %s: %w", filename, err)
		}
		steps = append(steps, fileSteps...)
	}

	return steps, nil
}

func parseScriptFile(fsys fs.FS, filename string) ([]Step, error) {
	file, err := fsys.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ParseScript(file)
}

// ParseScript reads one script. Text between
//
//	-- +migrate StatementBegin
//	-- +migrate StatementEnd
//
// becomes a Block step executed verbatim; everything else becomes Script steps
// that go through the splitter.
func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step
	var scriptBuilder, blockBuilder strings.Builder
	inBlock := false

	flushScript := func() {
		if text := strings.TrimSpace(scriptBuilder.String()); text != "" {
			steps = append(steps, Script(text))
		}
		scriptBuilder.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch trimmed {
		case markerBegin:
			if inBlock {
				return nil, errNestedBlock
			}
			flushScript()
			inBlock = true
			continue
		case markerEnd:
			if !inBlock {
				return nil, errUnexpectedEnd
			}
			text := strings.TrimSpace(blockBuilder.String())
			if text == "" {
				return nil, errEmptyBlock
			}
			steps = append(steps, Block(text))
			blockBuilder.Reset()
			inBlock = false
			continue
		}

		if inBlock {
			blockBuilder.WriteString(line)
			blockBuilder.WriteString("\n")
		} else {
			scriptBuilder.WriteString(line)
			scriptBuilder.WriteString("\n")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	if inBlock {
		return nil, errUnterminatedBlock
	}

	flushScript()

	return steps, nil
}
