package tokenizer

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer/tokenizertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTokenizerParity compares both Go tokenizers against the HuggingFace
// bert-base-uncased tokenizer. Skipped when python3 or transformers is missing.
func TestTokenizerParity(t *testing.T) {
	if testing.Short() {
		t.Skip("parity test needs python and network access")
	}
	py, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not found; skipping parity test")
	}

	sents := []string{
		tokenizertest.Sentence,
		"the quick brown fox jumps over the lazy dog",
		"Café crème, naïve résumé!",
	}
	input, err := json.Marshal(sents)
	require.NoError(t, err)

	script := `import json, sys
from transformers import AutoTokenizer
t=AutoTokenizer.from_pretrained("bert-base-uncased")
v=t.get_vocab()
tokens=[k for k,_ in sorted(v.items(), key=lambda kv:kv[1])]
sents=json.loads(sys.argv[1])
print(json.dumps({"vocab":tokens,"ids":[t(s)["input_ids"] for s in sents]}))`

	out, err := exec.Command(py, "-c", script, string(input)).Output()
	if err != nil {
		t.Skipf("python transformers not available or network issue: %v", err)
	}
	var ref struct {
		Vocab []string  `json:"vocab"`
		IDs   [][]int64 `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(out, &ref))

	vocabPath := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(vocabPath, []byte(strings.Join(ref.Vocab, "\n")+"\n"), 0o644))

	wp, err := LoadWordPieceFromVocab(vocabPath, 512, true)
	require.NoError(t, err)
	swp, err := NewSugarWordPiece(vocabPath, 512, true)
	require.NoError(t, err)

	for i, s := range sents {
		for name, tok := range map[string]Tokenizer{"wordpiece": wp, "sugarme": swp} {
			enc, err := tok.Encode(s)
			require.NoError(t, err, "%s: %q", name, s)
			assert.Equal(t, ref.IDs[i], enc.IDs, "%s: %q", name, s)
		}
	}
	// bert-base-uncased reserves 101/102 for the markers
	assert.Equal(t, SpecialIDs{CLS: 101, SEP: 102, PAD: 0, UNK: 100}, wp.SpecialIDs())
}
