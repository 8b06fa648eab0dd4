package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	mu        sync.Mutex
	t         *tk.Tokenizer
	vocab     *Vocab
	special   SpecialIDs
	maxSeqLen int
	truncate  bool
}

// NewSugarWordPiece loads vocab.txt (or a directory holding it) and builds
// an uncased BERT WordPiece tokenizer.
func NewSugarWordPiece(vocabPath string, maxSeq int, truncate bool) (*SugarWordPiece, error) {
	if fi, err := os.Stat(vocabPath); err == nil && fi.IsDir() {
		vocabPath = filepath.Join(vocabPath, "vocab.txt")
	}
	vocab, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load vocab: %w", err)
	}
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, UnkToken)
	if err != nil {
		return nil, fmt.Errorf("%w: sugarme wordpiece: %v", ErrUnsupported, err)
	}

	t := tk.NewTokenizer(wp)
	// clean text, lower-case, chinese chars, strip accents
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	special := vocab.Specials()
	template := processor.NewBertProcessing(
		processor.PostToken{Value: SepToken, Id: int(special.SEP)},
		processor.PostToken{Value: ClsToken, Id: int(special.CLS)},
	)
	t.WithPostProcessor(template)

	return &SugarWordPiece{
		t:         t,
		vocab:     vocab,
		special:   special,
		maxSeqLen: maxSeq,
		truncate:  truncate,
	}, nil
}

func (s *SugarWordPiece) Vocab() *Vocab          { return s.vocab }
func (s *SugarWordPiece) SpecialIDs() SpecialIDs { return s.special }
func (s *SugarWordPiece) MaxSeqLen() int         { return s.maxSeqLen }

func (s *SugarWordPiece) Encode(text string) (*Encoding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	s.mu.Lock()
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sugarme encode: %w", err)
	}
	uids := enc.GetIds()
	ids := make([]int64, len(uids))
	for i, id := range uids {
		ids[i] = int64(id)
	}
	tokens := append([]string(nil), enc.GetTokens()...)
	if len(tokens) != len(ids) {
		tokens = s.tokensFor(ids)
	}
	return finalize(ids, tokens, s.special, s.maxSeqLen, s.truncate)
}

// Decode maps ids back through the vocabulary; the pieces are joined the
// same way as the pure Go tokenizer so both round trip identically.
// Markers, [UNK] and ids outside the vocabulary are dropped.
func (s *SugarWordPiece) Decode(ids []int64) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.special.IsSpecial(id) {
			continue
		}
		if tok, ok := s.vocab.Token(id); ok {
			tokens = append(tokens, tok)
		}
	}
	return joinPieces(tokens)
}

func (s *SugarWordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	return padBatch(s, texts)
}

func (s *SugarWordPiece) tokensFor(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		tok, ok := s.vocab.Token(id)
		if !ok {
			tok = UnkToken
		}
		out[i] = tok
	}
	return out
}
