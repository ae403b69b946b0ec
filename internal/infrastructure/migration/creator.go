package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

const migrationUpTemplate = `-- Migration: {{.Name}}
-- Created: {{.Timestamp}}
-- Description: {{.Description}}

`

const migrationDownTemplate = `-- Migration: {{.Name}} (rollback)
-- Created: {{.Timestamp}}

`

// MigrationFile describes a generated up/down pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair versioned by the current UTC time
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	return createMigrationAt(migrationsDir, name, description, time.Now().UTC())
}

func createMigrationAt(migrationsDir, name, description string, now time.Time) (*MigrationFile, error) {
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := now.Format("20060102150405")
	baseName := version + "_" + sanitizeName(name)

	mf := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
		UpPath:      filepath.Join(migrationsDir, baseName+upSuffix),
		DownPath:    filepath.Join(migrationsDir, baseName+downSuffix),
	}

	if err := renderMigrationFile(mf.UpPath, migrationUpTemplate, mf); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := renderMigrationFile(mf.DownPath, migrationDownTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}

	return mf, nil
}

func renderMigrationFile(path, tmplContent string, data *MigrationFile) error {
	tmpl, err := template.New("migration").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	// O_EXCL so two creates within the same second never clobber each other
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	return tmpl.Execute(f, data)
}

// sanitizeName lowercases and keeps [a-z0-9], collapsing separators into one underscore
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range strings.ToLower(name) {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(c)
		case c == ' ' || c == '-' || c == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// ListMigrations returns the sorted base names of every up migration in fsys.
// A missing root yields an empty list.
func ListMigrations(fsys fs.FS) ([]string, error) {
	up, _, err := scanMigrations(fsys)
	if err != nil {
		return nil, err
	}
	return up, nil
}

// ValidatePairs reports every migration missing its up or down half
func ValidatePairs(fsys fs.FS) error {
	up, down, err := scanMigrations(fsys)
	if err != nil {
		return err
	}

	downSet := make(map[string]struct{}, len(down))
	for _, name := range down {
		downSet[name] = struct{}{}
	}

	var missing []string
	for _, name := range up {
		if _, ok := downSet[name]; !ok {
			missing = append(missing, name+downSuffix)
		}
		delete(downSet, name)
	}
	for name := range downSet {
		missing = append(missing, name+upSuffix)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unpaired migrations, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func scanMigrations(fsys fs.FS) (up, down []string, err error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, []string{}, nil
		}
		return nil, nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	up = make([]string, 0, len(entries)/2)
	down = make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, upSuffix):
			up = append(up, strings.TrimSuffix(name, upSuffix))
		case strings.HasSuffix(name, downSuffix):
			down = append(down, strings.TrimSuffix(name, downSuffix))
		}
	}
	sort.Strings(up)
	sort.Strings(down)
	return up, down, nil
}
