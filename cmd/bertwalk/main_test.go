package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer/tokenizertest"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against a temp model dir holding the test vocabulary.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	modelDir := filepath.Dir(tokenizertest.WriteVocab(t))
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := strings.Join([]string{
		"model:",
		"  backend: synthetic",
		"  tokenizer: wordpiece",
		"  dir: " + modelDir,
		"walkthrough:",
		"  color: false",
		"  preview: 3",
		"log:",
		"  level: error",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestWalkCommand(t *testing.T) {
	out, err := run(t, "walk")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Tokenizer")
	assert.Contains(t, out, "[5] Hand-off")
	assert.Contains(t, out, "(1, 15, 768)")
}

func TestTokenizeCommand(t *testing.T) {
	out, err := run(t, "tokenize", "the cat sat")
	require.NoError(t, err)
	assert.Contains(t, out, "[2 18 20 21 3]")
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS")
	assert.NotContains(t, out, "FAIL")
}

func TestEmbedCommandWritesHandoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.json")
	out, err := run(t, "embed", "dog", "the cat sat", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Cosine similarity")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	docs, err := pipeline.ReadHandoff(f)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "dog", docs[0].Text)
	assert.Len(t, docs[1].Pooled, 768)
}

func TestVocabCommand(t *testing.T) {
	out, err := run(t, "vocab", "##")
	require.NoError(t, err)
	assert.Contains(t, out, "##board")
	assert.Contains(t, out, "##ner")
	assert.NotContains(t, out, "snow\n")
}

func TestBackendFlagOverridesConfig(t *testing.T) {
	_, err := run(t, "--backend", "quantum", "walk")
	assert.ErrorContains(t, err, "unknown model.backend")
}
