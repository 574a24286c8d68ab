package migrations

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gestasaas/gestamigrate/database"
)

var (
	errUnsupportedFile = errors.New("unsupported descriptor file, expected .sql, .yaml or .yml")
	errInvalidStep     = errors.New("step must set exactly one of script, block or file")
	errNoSteps         = errors.New("descriptor has no steps")
)

type descriptorFile struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Steps       []stepFile            `yaml:"steps"`
	Verify      database.Verification `yaml:"verify"`
}

type stepFile struct {
	Script string `yaml:"script"`
	Block  string `yaml:"block"`
	File   string `yaml:"file"`
}

// FromFile loads a descriptor from disk. A .sql file becomes a descriptor
// named after the file, with StatementBegin/StatementEnd markers honoured.
// A .yaml or .yml file is a descriptor document:
//
//	name: add-phone-index
//	description: index usuarios by phone
//	steps:
//	  - script: CREATE INDEX idx_usuarios_telefone ON usuarios (telefone_e164);
//	  - block: |
//	      DO $$ BEGIN ... END $$;
//	  - file: extra.sql
//	verify:
//	  tables:
//	    - name: usuarios
//	      indexes: [idx_usuarios_telefone]
//
// File steps are resolved relative to the YAML file.
func FromFile(path string) (database.Descriptor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sql":
		return fromSQLFile(path)
	case ".yaml", ".yml":
		return fromYAMLFile(path)
	default:
		return database.Descriptor{}, fmt.Errorf("%s: %w", path, errUnsupportedFile)
	}
}

func fromSQLFile(path string) (database.Descriptor, error) {
	steps, err := readScriptFile(path)
	if err != nil {
		return database.Descriptor{}, err
	}

	return database.Descriptor{
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Steps: steps,
	}, nil
}

func fromYAMLFile(path string) (database.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return database.Descriptor{}, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var doc descriptorFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return database.Descriptor{}, fmt.Errorf("failed to parse descriptor %s: %w", path, err)
	}

	if len(doc.Steps) == 0 {
		return database.Descriptor{}, fmt.Errorf("%s: %w", path, errNoSteps)
	}

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	descriptor := database.Descriptor{
		Name:        name,
		Description: doc.Description,
		Verify:      doc.Verify,
	}

	for i, step := range doc.Steps {
		steps, err := step.resolve(filepath.Dir(path))
		if err != nil {
			return database.Descriptor{}, fmt.Errorf("%s: step %d: %w", path, i+1, err)
		}
		descriptor.Steps = append(descriptor.Steps, steps...)
	}

	return descriptor, nil
}

func (s stepFile) resolve(dir string) ([]database.Step, error) {
	set := 0
	for _, value := range []string{s.Script, s.Block, s.File} {
		if strings.TrimSpace(value) != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errInvalidStep
	}

	switch {
	case strings.TrimSpace(s.Script) != "":
		return []database.Step{database.Script(s.Script)}, nil
	case strings.TrimSpace(s.Block) != "":
		return []database.Step{database.Block(s.Block)}, nil
	default:
		path := s.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return readScriptFile(path)
	}
}

func readScriptFile(path string) ([]database.Step, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer func() { _ = file.Close() }()

	steps, err := database.ParseScript(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}

	return steps, nil
}
