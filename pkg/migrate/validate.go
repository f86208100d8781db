package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// nonPortable lists postgres-only constructs. Migrations also run against
// sqlite for local runs and tests, so they must stay in the shared dialect.
var nonPortable = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?i)\bgen_random_uuid\s*\(`), "ids are generated by the application"},
	{regexp.MustCompile(`(?i)\bnow\s*\(\s*\)`), "use CURRENT_TIMESTAMP"},
	{regexp.MustCompile(`::\s*[a-z]`), "casts with :: are postgres only"},
	{regexp.MustCompile(`(?i)\bCREATE\s+TYPE\b`), "store enums as VARCHAR with a CHECK"},
	{regexp.MustCompile(`(?i)\bSERIAL\b`), "use UUID primary keys"},
}

// ValidateDir checks migration filenames, goose annotations and dialect
// portability. It returns the first problem found in version order.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := map[string]string{}
	for _, name := range names {
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}
		if err := validateBody(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateBody(name, txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd", name, begins, ends)
	}

	body := stripComments(txt)
	for _, rule := range nonPortable {
		if loc := rule.re.FindStringIndex(body); loc != nil {
			return fmt.Errorf("migration %q uses %q: %s", name, body[loc[0]:loc[1]], rule.hint)
		}
	}
	return nil
}

func stripComments(txt string) string {
	lines := strings.Split(txt, "\n")
	out := lines[:0]
	for _, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
