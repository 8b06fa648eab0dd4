package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer/tokenizertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabBijection(t *testing.T) {
	v, err := LoadVocab(tokenizertest.WriteVocab(t))
	require.NoError(t, err)
	assert.Equal(t, len(tokenizertest.Tokens), v.Size())

	for i, tok := range tokenizertest.Tokens {
		id, ok := v.ID(tok)
		require.True(t, ok, tok)
		assert.Equal(t, int64(i), id)
		back, ok := v.Token(id)
		require.True(t, ok)
		assert.Equal(t, tok, back)
	}

	_, ok := v.Token(-1)
	assert.False(t, ok)
	_, ok = v.Token(int64(v.Size()))
	assert.False(t, ok)
}

func TestVocabRejectsDuplicates(t *testing.T) {
	_, err := NewVocab([]string{"a", "b", "a"})
	assert.ErrorContains(t, err, "duplicate")
}

func TestVocabEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))
	_, err := LoadVocab(path)
	assert.Error(t, err)
}

func TestVocabPrefixLookups(t *testing.T) {
	v, err := NewVocab(tokenizertest.Tokens)
	require.NoError(t, err)

	tok, id, ok := v.LongestPrefix("snowboarding")
	require.True(t, ok)
	assert.Equal(t, "snow", tok)
	assert.Equal(t, int64(14), id)

	entries := v.WithPrefix("##", 0)
	var got []string
	for _, e := range entries {
		got = append(got, e.Token)
	}
	assert.Equal(t, []string{"##board", "##ing", "##ner", "##s"}, got)
	assert.Len(t, v.WithPrefix("##", 2), 2)
	assert.Empty(t, v.WithPrefix("zz", 0))
}

func TestVocabSpecials(t *testing.T) {
	v, err := NewVocab(tokenizertest.Tokens)
	require.NoError(t, err)
	assert.Equal(t, SpecialIDs{CLS: 2, SEP: 3, PAD: 0, UNK: 1}, v.Specials())

	bare, err := NewVocab([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, SpecialIDs{CLS: 101, SEP: 102, PAD: 0, UNK: 100}, bare.Specials())
}

func TestSpecialIDsIsSpecial(t *testing.T) {
	sp := SpecialIDs{CLS: 2, SEP: 3, PAD: 0, UNK: 1}
	for _, id := range []int64{0, 1, 2, 3} {
		assert.True(t, sp.IsSpecial(id), id)
	}
	assert.False(t, sp.IsSpecial(4))
	assert.False(t, sp.IsSpecial(5))
}
