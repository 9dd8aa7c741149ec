package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

/*
Staging holds merge batches that could not be applied yet, one JSON
file per (business day, stage). The write is temp-file + fsync +
rename, so a crash mid-write leaves either the old artifact or none,
never a torn one. A later run loads and re-applies pending artifacts
before doing anything else.
*/
type Staging struct {
	dir string
}

func New(dir string) (*Staging, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("staging: create dir: %w", err)
	}
	return &Staging{dir: dir}, nil
}

// Write persists the batch atomically, replacing any previous artifact
// for the same day and stage.
func (s *Staging) Write(date time.Time, stage string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("staging: encode %s: %w", stage, err)
	}

	final := s.path(date, stage)
	tmp, err := os.CreateTemp(s.dir, "."+stage+"-*")
	if err != nil {
		return fmt.Errorf("staging: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("staging: write %s: %w", stage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("staging: sync %s: %w", stage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging: close %s: %w", stage, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("staging: rename %s: %w", stage, err)
	}
	return nil
}

// Load reads the artifact into out. ok is false when no artifact
// exists.
func (s *Staging) Load(date time.Time, stage string, out any) (bool, error) {
	data, err := os.ReadFile(s.path(date, stage))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("staging: read %s: %w", stage, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("staging: decode %s: %w", stage, err)
	}
	return true, nil
}

// Discard removes the artifact once its batch has been applied and
// verified. Missing artifact is not an error.
func (s *Staging) Discard(date time.Time, stage string) error {
	err := os.Remove(s.path(date, stage))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("staging: discard %s: %w", stage, err)
	}
	return nil
}

// Stages lists pending stage names for the day, sorted, for crash
// recovery at startup.
func (s *Staging) Stages(date time.Time) ([]string, error) {
	prefix := date.Format(dateLayout) + "_"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("staging: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Staging) path(date time.Time, stage string) string {
	return filepath.Join(s.dir, date.Format(dateLayout)+"_"+stage+".json")
}
