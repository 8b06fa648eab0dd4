package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxCharsPerWord = 100

// WordPiece is a pure Go uncased BERT tokenizer: basic cleanup, lower-casing,
// accent stripping and punctuation splitting, then greedy longest-match-first
// sub-word lookup against the vocabulary.
type WordPiece struct {
	vocab     *Vocab
	special   SpecialIDs
	maxSeqLen int
	truncate  bool
}

func LoadWordPieceFromVocab(path string, maxSeq int, truncate bool) (*WordPiece, error) {
	vocab, err := LoadVocab(path)
	if err != nil {
		return nil, err
	}
	return NewWordPiece(vocab, maxSeq, truncate), nil
}

func NewWordPiece(vocab *Vocab, maxSeq int, truncate bool) *WordPiece {
	return &WordPiece{vocab: vocab, special: vocab.Specials(), maxSeqLen: maxSeq, truncate: truncate}
}

func (w *WordPiece) Vocab() *Vocab          { return w.vocab }
func (w *WordPiece) SpecialIDs() SpecialIDs { return w.special }
func (w *WordPiece) MaxSeqLen() int         { return w.maxSeqLen }

func (w *WordPiece) Encode(text string) (*Encoding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	ids := []int64{w.special.CLS}
	tokens := []string{ClsToken}
	for _, word := range basicTokenize(text) {
		for _, piece := range w.wordPieces(word) {
			id, ok := w.vocab.ID(piece)
			if !ok {
				id = w.special.UNK
			}
			ids = append(ids, id)
			tokens = append(tokens, piece)
		}
	}
	ids = append(ids, w.special.SEP)
	tokens = append(tokens, SepToken)
	return finalize(ids, tokens, w.special, w.maxSeqLen, w.truncate)
}

func (w *WordPiece) Decode(ids []int64) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if w.special.IsSpecial(id) {
			continue
		}
		if tok, ok := w.vocab.Token(id); ok {
			tokens = append(tokens, tok)
		}
	}
	return joinPieces(tokens)
}

func (w *WordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	return padBatch(w, texts)
}

// wordPieces splits one word into vocabulary pieces; a word with any
// unmatched remainder becomes a single [UNK].
func (w *WordPiece) wordPieces(word string) []string {
	if len([]rune(word)) > maxCharsPerWord {
		return []string{UnkToken}
	}
	var pieces []string
	rest := word
	first := true
	for rest != "" {
		key := rest
		if !first {
			key = "##" + rest
		}
		match, _, ok := w.vocab.LongestPrefix(key)
		if !ok || (!first && len(match) <= 2) {
			return []string{UnkToken}
		}
		pieces = append(pieces, match)
		if first {
			rest = rest[len(match):]
		} else {
			rest = rest[len(match)-2:]
		}
		first = false
	}
	return pieces
}

// basicTokenize performs the uncased BERT pre-tokenization.
func basicTokenize(text string) []string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == 0xfffd || isControl(r):
			continue
		case isWhitespace(r):
			b.WriteByte(' ')
		case isCJK(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	lowered := strings.ToLower(b.String())
	// transform chains keep state, so each call builds its own.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(stripAccents, lowered); err == nil {
		lowered = s
	}

	var words []string
	for _, field := range strings.Fields(lowered) {
		start := 0
		for i, r := range field {
			if !isPunctuation(r) {
				continue
			}
			if start < i {
				words = append(words, field[start:i])
			}
			words = append(words, string(r))
			start = i + len(string(r))
		}
		if start < len(field) {
			words = append(words, field[start:])
		}
	}
	return words
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.In(r, unicode.Cc, unicode.Cf)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
