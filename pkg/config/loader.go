package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/mocklane/pkg/mock"
)

// Common errors for rule loading/saving.
var (
	ErrFileNotFound     = errors.New("rules file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("rules file is empty")
	ErrNotPersistable   = errors.New("rules source cannot be written back")
)

// Format is a rule file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from the file extension: .yaml and .yml are YAML,
// everything else is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// IsGlob reports whether path contains glob metacharacters.
func IsGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// SourceExists reports whether path names an existing file or, for a glob,
// matches at least one file.
func SourceExists(path string) bool {
	if path == "" {
		return false
	}
	if IsGlob(path) {
		matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
		return err == nil && len(matches) > 0
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadRules reads the rules at path, which is either one file or a glob. A
// glob loads every matching file in sorted order and concatenates the rules;
// a glob without matches yields an empty set. The combined set is validated
// as a whole, so ids must be unique across files.
func LoadRules(path string) ([]*mock.Rule, error) {
	if !IsGlob(path) {
		rules, err := loadRuleFile(path)
		if err != nil {
			return nil, err
		}
		if err := mock.ValidateSet(rules); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return rules, nil
	}

	matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding glob %s: %w", path, err)
	}
	sort.Strings(matches)

	rules := []*mock.Rule{}
	for _, match := range matches {
		loaded, err := loadRuleFile(match)
		if err != nil {
			return nil, err
		}
		rules = append(rules, loaded...)
	}
	if err := mock.ValidateSet(rules); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func loadRuleFile(path string) ([]*mock.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	rules, err := ParseRules(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes one rule document: a top-level array of rules or an
// object with a "mocks" array. The document is checked against the rules
// JSON Schema before decoding; null entries are skipped. ParseRules does not
// check cross-rule constraints such as id uniqueness.
func ParseRules(data []byte, format Format) ([]*mock.Rule, error) {
	var doc any
	switch format {
	case FormatYAML:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		// Round-trip through JSON so YAML scalars take their JSON types.
		canonical, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		data = canonical
		fallthrough
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	if obj, ok := doc.(map[string]any); ok {
		var err error
		if data, err = json.Marshal(obj["mocks"]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}
	return mock.DecodeRules(data)
}

// SaveRules writes rules to path as an indented JSON array, or YAML for
// .yaml/.yml paths, using a temporary file and an atomic rename. Globs cannot
// be written back.
func SaveRules(path string, rules []*mock.Rule) error {
	if path == "" || IsGlob(path) {
		return fmt.Errorf("%w: %q", ErrNotPersistable, path)
	}
	if rules == nil {
		rules = []*mock.Rule{}
	}

	var (
		data []byte
		err  error
	)
	if FormatFor(path) == FormatYAML {
		data, err = yaml.Marshal(rules)
	} else {
		data, err = json.MarshalIndent(rules, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
