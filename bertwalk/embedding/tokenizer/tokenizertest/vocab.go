// Package tokenizertest provides a tiny BERT-style vocabulary for tests.
package tokenizertest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Tokens is a vocabulary in id order that covers the walkthrough sentence.
var Tokens = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"hello", ",", "my", "dog", "is", "cute", ".", "he", "likes",
	"snow", "##board", "##ing", "!", "the", "a", "cat", "sat",
	"##s", "'", "on", "mat", "run", "##ner",
}

// Sentence is the walkthrough sentence and SentenceIDs its encoding under Tokens.
const Sentence = "Hello, my dog is cute. He likes snowboarding!"

var SentenceIDs = []int64{2, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 3}

// WriteVocab writes Tokens as vocab.txt into a temp dir and returns its path.
func WriteVocab(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(Tokens, "\n")+"\n"), 0o644); err != nil {
		tb.Fatalf("write vocab: %v", err)
	}
	return path
}
