package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, stopWords int) (configPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "doc1.txt"), []byte("apple banana apple"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "doc2.txt"), []byte("banana cherry"), 0o644))

	dataDir = filepath.Join(dir, "index")
	configPath = filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("experiment:\n  collectionPath: %s\n  stopWordCount: %d\nindexer:\n  dataDir: %s\nlogging:\n  level: error\n",
		docs, stopWords, dataDir)
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "retrieval version dev")
}

func TestSearchCommand(t *testing.T) {
	cfg, _ := setup(t, 1)
	out, err := execute(t, "--config", cfg, "search", "banana", "--mode", "tf")
	require.NoError(t, err)
	assert.Contains(t, out, "Search for query 0: banana")
	assert.Contains(t, out, "2 total matching documents")

	out, err = execute(t, "--config", cfg, "search", "apple")
	require.NoError(t, err)
	assert.Contains(t, out, "empty_query")
}

func TestIndexThenSearchSavedIndex(t *testing.T) {
	cfg, dataDir := setup(t, 0)
	out, err := execute(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2, updated 0, removed 0, failed 0")
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	out, err = execute(t, "--config", cfg, "search", "--from-index", "cherry")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total matching documents")
	assert.Contains(t, out, "doc2.txt")
}

func TestStopwordsCommand(t *testing.T) {
	cfg, _ := setup(t, 0)
	out, err := execute(t, "--config", cfg, "stopwords", "-k", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Regexp(t, `1\s+apple\s+2\s+1`, out)
	assert.Regexp(t, `2\s+banana\s+2\s+2`, out)
}

func TestRunCommandWritesTRECFile(t *testing.T) {
	cfg, _ := setup(t, 1)
	dir := t.TempDir()
	queries := filepath.Join(dir, "queries.txt")
	require.NoError(t, os.WriteFile(queries, []byte("1 banana\n2 cherry\n"), 0o644))
	t.Setenv("RE_EXPERIMENT_QUERIES_PATH", queries)
	runFile := filepath.Join(dir, "run.txt")

	_, err := execute(t, "--config", cfg, "run", "-o", runFile)
	require.NoError(t, err)
	data, err := os.ReadFile(runFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1 Q0 ")
	assert.Contains(t, string(data), "2 Q0 ")
	assert.Contains(t, string(data), "doc2.txt 1 ")
}

func TestSearchDefaultLimitFromConfig(t *testing.T) {
	cfg, _ := setup(t, 0)
	t.Setenv("RE_SEARCH_DEFAULT_LIMIT", "1")

	out, err := execute(t, "--config", cfg, "search", "banana", "--mode", "tf")
	require.NoError(t, err)
	assert.Contains(t, out, "2 total matching documents")
	assert.Contains(t, out, "  1. ")
	assert.NotContains(t, out, "  2. ")

	out, err = execute(t, "--config", cfg, "search", "banana", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "  2. ")
}

func TestStopwordsAllTerms(t *testing.T) {
	cfg, _ := setup(t, 0)
	out, err := execute(t, "--config", cfg, "stopwords", "--all")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+apple\s+2\s+1`, out)
	assert.Regexp(t, `2\s+banana\s+2\s+2`, out)
	assert.Regexp(t, `3\s+cherry\s+1\s+1`, out)
}

func TestPostingsCommand(t *testing.T) {
	cfg, _ := setup(t, 0)
	_, err := execute(t, "--config", cfg, "postings", "apple")
	assert.ErrorContains(t, err, "no saved index")

	_, err = execute(t, "--config", cfg, "index")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "postings", "Apple")
	require.NoError(t, err)
	assert.Contains(t, out, "3 terms, 2 documents")
	assert.Contains(t, out, "apple: 1 documents, 2 occurrences")
	assert.Contains(t, out, "doc1.txt")
	assert.Regexp(t, `2\s+\[0 2\]`, out)

	out, err = execute(t, "--config", cfg, "postings", "durian")
	require.NoError(t, err)
	assert.Contains(t, out, "durian: 0 documents")
}

func TestIndexUpdatePrunesDeletedFiles(t *testing.T) {
	cfg, _ := setup(t, 0)
	_, err := execute(t, "--config", cfg, "index")
	require.NoError(t, err)

	docs := filepath.Join(filepath.Dir(cfg), "docs")
	require.NoError(t, os.Remove(filepath.Join(docs, "doc2.txt")))
	out, err := execute(t, "--config", cfg, "index", "--update", "--prune")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 0, updated 1, removed 1, failed 0; 1 documents")

	out, err = execute(t, "--config", cfg, "search", "--from-index", "cherry")
	require.NoError(t, err)
	assert.Contains(t, out, "0 total matching documents")
}
