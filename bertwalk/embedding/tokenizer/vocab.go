package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/armon/go-radix"
)

// Vocab is the immutable token <-> id mapping of a vocab.txt file.
// Ids are assigned by line order. The radix tree gives greedy longest-prefix
// lookups for WordPiece and prefix walks for vocabulary exploration.
type Vocab struct {
	tree   *radix.Tree
	tokens []string
}

// VocabEntry is one vocabulary row.
type VocabEntry struct {
	Token string
	ID    int64
}

// NewVocab builds a vocabulary from tokens in id order. Duplicates are rejected.
func NewVocab(tokens []string) (*Vocab, error) {
	v := &Vocab{tree: radix.New(), tokens: make([]string, 0, len(tokens))}
	for i, tok := range tokens {
		if _, dup := v.tree.Insert(tok, int64(i)); dup {
			return nil, fmt.Errorf("duplicate vocabulary token %q at id %d", tok, i)
		}
		v.tokens = append(v.tokens, tok)
	}
	return v, nil
}

// LoadVocab reads a one-token-per-line vocab.txt.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tokens := make([]string, 0, 32000)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab %s: %w", path, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return NewVocab(tokens)
}

func (v *Vocab) Size() int { return len(v.tokens) }

func (v *Vocab) ID(token string) (int64, bool) {
	id, ok := v.tree.Get(token)
	if !ok {
		return 0, false
	}
	return id.(int64), true
}

func (v *Vocab) Token(id int64) (string, bool) {
	if id < 0 || id >= int64(len(v.tokens)) {
		return "", false
	}
	return v.tokens[id], true
}

// LongestPrefix returns the longest vocabulary entry that prefixes s.
func (v *Vocab) LongestPrefix(s string) (string, int64, bool) {
	tok, id, ok := v.tree.LongestPrefix(s)
	if !ok {
		return "", 0, false
	}
	return tok, id.(int64), true
}

// WithPrefix lists entries starting with prefix in lexical order.
// limit <= 0 means no limit.
func (v *Vocab) WithPrefix(prefix string, limit int) []VocabEntry {
	var out []VocabEntry
	v.tree.WalkPrefix(prefix, func(key string, value interface{}) bool {
		out = append(out, VocabEntry{Token: key, ID: value.(int64)})
		return limit > 0 && len(out) >= limit
	})
	return out
}

// Specials resolves the marker ids, falling back to the bert-base-uncased ids.
func (v *Vocab) Specials() SpecialIDs {
	sp := SpecialIDs{CLS: 101, SEP: 102, PAD: 0, UNK: 100}
	if id, ok := v.ID(ClsToken); ok {
		sp.CLS = id
	}
	if id, ok := v.ID(SepToken); ok {
		sp.SEP = id
	}
	if id, ok := v.ID(PadToken); ok {
		sp.PAD = id
	}
	if id, ok := v.ID(UnkToken); ok {
		sp.UNK = id
	}
	return sp
}

// IsSpecial reports whether id is one of the reserved markers. Decoding
// skips all of them, [UNK] included.
func (sp SpecialIDs) IsSpecial(id int64) bool {
	return id == sp.CLS || id == sp.SEP || id == sp.PAD || id == sp.UNK
}
