package tokenizer

import (
	"errors"
	"fmt"
	"strings"
)

// Tokenizer converts raw text to model-ready token IDs and back.
type Tokenizer interface {
	// Encode produces the full id sequence for one string, markers included.
	Encode(text string) (*Encoding, error)
	// Decode reverses Encode, dropping special markers.
	Decode(ids []int64) string
	// Tokenize encodes a batch padded to MaxSeqLen.
	Tokenize(texts []string) (inputIDs [][]int64, attentionMasks [][]int64, err error)
	SpecialIDs() SpecialIDs
	MaxSeqLen() int
	Vocab() *Vocab
}

// Encoding is the tokenizer output for a single sequence.
type Encoding struct {
	IDs     []int64
	Tokens  []string
	TypeIDs []int64
	Mask    []int64
	// Truncated reports that the input did not fit in MaxSeqLen.
	Truncated bool
}

// Len returns the number of sequence slots used.
func (e *Encoding) Len() int { return len(e.IDs) }

// SpecialIDs are the reserved marker ids of a BERT vocabulary.
type SpecialIDs struct {
	CLS int64
	SEP int64
	PAD int64
	UNK int64
}

// Special token strings of the uncased BERT vocabulary.
const (
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
)

var (
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")
	// ErrEmptyInput is returned for empty or whitespace-only text.
	ErrEmptyInput = errors.New("input text is empty")
	// ErrSequenceTooLong is returned when truncation is disabled and the
	// encoded sequence exceeds MaxSeqLen.
	ErrSequenceTooLong = errors.New("sequence exceeds maximum length")
)

// Config holds basic tokenizer settings
type Config struct {
	Kind      string
	VocabPath string
	MaxSeqLen int
	Truncate  bool
}

// New selects a tokenizer by kind ("sugarme" or "wordpiece").
// A sugarme tokenizer that fails to load falls back to the pure Go WordPiece.
func New(cfg Config) (Tokenizer, error) {
	if cfg.MaxSeqLen <= 2 {
		return nil, fmt.Errorf("%w: max sequence length %d", ErrUnsupported, cfg.MaxSeqLen)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "sugarme", "":
		swp, err := NewSugarWordPiece(cfg.VocabPath, cfg.MaxSeqLen, cfg.Truncate)
		if err == nil {
			return swp, nil
		}
		wp, werr := LoadWordPieceFromVocab(cfg.VocabPath, cfg.MaxSeqLen, cfg.Truncate)
		if werr != nil {
			return nil, fmt.Errorf("failed to initialize tokenizer: %v (fallback: %w)", err, werr)
		}
		return wp, nil
	case "wordpiece":
		return LoadWordPieceFromVocab(cfg.VocabPath, cfg.MaxSeqLen, cfg.Truncate)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupported, cfg.Kind)
	}
}

// finalize applies the length contract to a marker-wrapped sequence: with
// truncation the tail is cut and [SEP] kept last, without it the sequence is rejected.
func finalize(ids []int64, tokens []string, sp SpecialIDs, maxSeq int, truncate bool) (*Encoding, error) {
	enc := &Encoding{}
	if len(ids) > maxSeq {
		if !truncate {
			return nil, fmt.Errorf("%w: %d tokens, limit %d", ErrSequenceTooLong, len(ids), maxSeq)
		}
		ids = append(ids[:maxSeq-1:maxSeq-1], sp.SEP)
		tokens = append(tokens[:maxSeq-1:maxSeq-1], SepToken)
		enc.Truncated = true
	}
	enc.IDs = ids
	enc.Tokens = tokens
	enc.TypeIDs = make([]int64, len(ids))
	enc.Mask = make([]int64, len(ids))
	for i := range enc.Mask {
		enc.Mask[i] = 1
	}
	return enc, nil
}

// padBatch encodes texts with t and pads every row to t.MaxSeqLen.
func padBatch(t Tokenizer, texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	pad := t.SpecialIDs().PAD
	for i, txt := range texts {
		enc, err := t.Encode(txt)
		if err != nil {
			return nil, nil, fmt.Errorf("encode input %d: %w", i, err)
		}
		rowIDs := make([]int64, t.MaxSeqLen())
		rowMask := make([]int64, t.MaxSeqLen())
		for j := range rowIDs {
			if j < enc.Len() {
				rowIDs[j] = enc.IDs[j]
				rowMask[j] = 1
				continue
			}
			rowIDs[j] = pad
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks, nil
}

// joinPieces glues WordPiece continuation pieces and applies the usual
// tokenization-space cleanup.
func joinPieces(tokens []string) string {
	var b strings.Builder
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "##") {
			b.WriteString(tok[2:])
			continue
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return cleanupSpaces(b.String())
}

var cleanupReplacer = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

func cleanupSpaces(s string) string {
	return cleanupReplacer.Replace(s)
}
