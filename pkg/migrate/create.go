package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration to dir and returns its
// path. The version is the current UTC time, bumped past the newest existing
// version so files always sort after what is already there.
func CreateSQLMigration(dir, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	latest, err := latestVersion(dir)
	if err != nil {
		return "", err
	}
	if version <= latest {
		next, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10))
		if err != nil {
			return "", fmt.Errorf("parse latest version %d: %w", latest, err)
		}
		version, _ = strconv.ParseInt(next.Add(time.Second).Format(versionLayout), 10, 64)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, slug))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", path, err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	slug := unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

func latestVersion(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", dir, err)
	}
	var latest int64
	for _, entry := range entries {
		if match := migrationNameRe.FindStringSubmatch(entry.Name()); match != nil {
			v, _ := strconv.ParseInt(match[1], 10, 64)
			latest = max(latest, v)
		}
	}
	return latest, nil
}
