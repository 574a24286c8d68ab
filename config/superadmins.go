package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var errSuperAdminEmail = errors.New("super admin entry without email")

type superAdminsFile struct {
	SuperAdmins []SuperAdmin `yaml:"super_admins"`
}

// LoadSuperAdmins reads a YAML document of the form
//
//	super_admins:
//	  - name: Ana
//	    email: ana@example.com
//	    password: s3cret
func LoadSuperAdmins(path string) ([]SuperAdmin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read super admins file: %w", err)
	}

	var doc superAdminsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse super admins file %s: %w", path, err)
	}

	for i, admin := range doc.SuperAdmins {
		admin.Email = strings.TrimSpace(admin.Email)
		if admin.Email == "" {
			return nil, fmt.Errorf("%s: entry %d: %w", path, i+1, errSuperAdminEmail)
		}
		doc.SuperAdmins[i] = admin
	}

	return doc.SuperAdmins, nil
}
