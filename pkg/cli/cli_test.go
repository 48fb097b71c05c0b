package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
)

func TestRootCommand_Tree(t *testing.T) {
	root := NewRootCommand("test")

	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"usage", "export"},
		{"usage", "quota"},
		{"usage", "set-tier"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRootCommand_Version(t *testing.T) {
	root := NewRootCommand("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1.2.3")
}

func TestUsageSetTier_RejectsUnknownTier(t *testing.T) {
	root := NewRootCommand("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"usage", "set-tier", "--user", "u1", "--tier", "platinum"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

	from, to, err := parseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -30), from)

	from, to, err = parseRange("2026-05-01", "2026-05-10", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), to)

	_, _, err = parseRange("2026-05-10", "2026-05-01", now)
	assert.Error(t, err)

	_, _, err = parseRange("May 1", "", now)
	assert.Error(t, err)
}

func TestWriteOutput(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, writeOutput(&stdout, "", []byte("a,b\n")))
	assert.Equal(t, "a,b\n", stdout.String())

	path := filepath.Join(t.TempDir(), "usage.csv")
	require.NoError(t, writeOutput(&stdout, path, []byte("c,d\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))
}

func TestStreamingOptions(t *testing.T) {
	cfg := &config.Config{
		Streaming: config.StreamingConfig{
			MaxRetries:              5,
			RetryDelay:              2 * time.Second,
			Timeout:                 time.Minute,
			BatchSize:               4,
			ReplayDelay:             10 * time.Millisecond,
			UseFallbackModel:        true,
			MinQualityScore:         0.6,
			MaxConcurrentVariations: 2,
		},
		Prompt: config.PromptConfig{Compaction: true},
	}

	opts := streamingOptions(cfg)
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, 2*time.Second, opts.RetryDelay)
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, 0.6, opts.MinQualityScore)
	assert.Equal(t, 2, opts.MaxConcurrentVariations)
	assert.True(t, opts.UseFallbackModel)
	assert.True(t, opts.Compaction)
}
