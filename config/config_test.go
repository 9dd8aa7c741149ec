package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_PERFECT_THRESHOLD", "85")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("DATA_DIR", "/tmp/argus-test")

	cfg := LoadFromEnv("")
	require.Equal(t, 85, cfg.Matching.PerfectThreshold)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Feed.Brokers)
	require.Equal(t, "/tmp/argus-test", cfg.Store.DataDir)

	// Untouched fields keep defaults.
	require.Equal(t, Default().Oracle.Model, cfg.Oracle.Model)
}

func TestAuthorityDefaults(t *testing.T) {
	a := DefaultAuthority()

	rule, ok := a.Rule("emailMatchStatus")
	require.True(t, ok)
	require.Contains(t, rule.Sticky, "OMS_MATCH")

	rule, ok = a.Rule("discrepancies")
	require.True(t, ok)
	require.True(t, rule.KeepNonEmpty)

	require.True(t, a.Owns("audioMatchType", "audio"))
	require.False(t, a.Owns("audioMatchType", "email"))
	require.True(t, a.Owns("emailMatchStatus", "oms"))
	require.True(t, a.StickyHolds("emailMatchStatus", "OMS_MATCH"))
	require.False(t, a.StickyHolds("emailMatchStatus", "Matched"))
}

func TestAuthorityOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.yaml")
	content := []byte("fields:\n  matchConfidence:\n    sources: [oms]\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	a, err := LoadAuthority(path)
	require.NoError(t, err)
	require.True(t, a.Owns("matchConfidence", "oms"))
	require.False(t, a.Owns("matchConfidence", "email"))
	// Unmentioned fields keep defaults.
	require.True(t, a.Owns("emailMatchType", "email"))
}

func TestAuthorityRejectsUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.yaml")
	content := []byte("fields:\n  matchConfidence:\n    sources: [fax]\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	_, err := LoadAuthority(path)
	require.Error(t, err)
}
