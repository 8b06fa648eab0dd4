// Package narrate prints a pipeline trace as a sequence of commented cells,
// the way a notebook walks a reader through a forward pass.
package narrate

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/pipeline"

	"github.com/charmbracelet/lipgloss"
)

// Narrator renders traces to an output stream.
type Narrator struct {
	w       *errWriter
	preview int
	styles  styles
	cell    int
}

type styles struct {
	heading lipgloss.Style
	prose   lipgloss.Style
	label   lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	box     lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{heading: plain, prose: plain, label: plain, pass: plain, fail: plain, box: plain}
	}
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		prose:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		label:   lipgloss.NewStyle().Bold(true),
		pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// New returns a Narrator writing to w. preview is the number of leading
// values shown per vector; color enables terminal styling.
func New(w io.Writer, preview int, color bool) *Narrator {
	if preview < 0 {
		preview = 0
	}
	return &Narrator{w: &errWriter{w: w}, preview: preview, styles: newStyles(color)}
}

// Walk narrates every stage of tr.
func (n *Narrator) Walk(tr *pipeline.Trace) error {
	n.cell = 0
	n.tokenizerCell(tr)
	n.embeddingCell(tr)
	n.encoderCell(tr)
	n.poolerCell(tr)
	n.handoffCell(tr)
	return n.w.err
}

// Tokens prints only the tokenizer cell.
func (n *Narrator) Tokens(tr *pipeline.Trace) error {
	n.cell = 0
	n.tokenizerCell(tr)
	return n.w.err
}

func (n *Narrator) tokenizerCell(tr *pipeline.Trace) {
	enc := tr.Encoding
	n.heading("Tokenizer")
	n.prose("The tokenizer lower-cases the sentence and splits it into sub-word units from a fixed",
		"vocabulary. Words the vocabulary lacks are assembled from pieces, where a leading \"##\"",
		"marks a continuation of the previous piece. A sequence-start marker [CLS] is prepended",
		"and a sequence-end marker [SEP] appended; every piece is replaced by its integer id.")
	n.field("Input text", fmt.Sprintf("%q", tr.Text))
	n.field("Token ids", formatIDs(enc.IDs))
	n.field("Sequence length", fmt.Sprintf("%d", enc.Len()))
	if enc.Truncated {
		n.field("Truncated", "yes, the input exceeded the maximum sequence length")
	}
	rows := make([]string, enc.Len())
	for i, id := range enc.IDs {
		tok := ""
		if i < len(enc.Tokens) {
			tok = enc.Tokens[i]
		}
		rows[i] = fmt.Sprintf("%4d  %6d  %s", i, id, tok)
	}
	n.block("pos      id  piece", rows)
	n.prose("Decoding the ids reverses the mapping: markers are dropped and continuation pieces",
		"are glued back onto the word they belong to. Case is gone for good.")
	n.field("Decoded", fmt.Sprintf("%q", tr.Decoded))
}

func (n *Narrator) embeddingCell(tr *pipeline.Trace) {
	emb := tr.Output.Embeddings
	n.heading("Embeddings")
	n.prose("Each id selects one learned row of the word-embedding table. A second table, indexed",
		"by position, is added so that the same word at different slots gets a different vector,",
		"and the sum is layer-normalised. One vector per token, all of the same width.")
	n.field("Shape", formatShape(emb.Shape()))
	n.vectors(tr.Encoding.Tokens, emb)
	lo, hi := emb.Range()
	n.field("Value range", fmt.Sprintf("[%.4f, %.4f]", lo, hi))
}

func (n *Narrator) encoderCell(tr *pipeline.Trace) {
	ctx := tr.Output.Context
	n.heading("Encoder")
	n.prose("The transformer stack rewrites every vector in the light of all the others through",
		"repeated self-attention and feed-forward blocks. It is used here as a black box",
		fmt.Sprintf("(%s backend). What matters is its contract: the output has exactly the", tr.Encoder),
		"shape of the input, one context vector per token.")
	n.field("Shape", formatShape(ctx.Shape()))
	n.field("Same shape as embeddings", fmt.Sprintf("%t", ctx.SameShape(tr.Output.Embeddings)))
	n.vectors(tr.Encoding.Tokens, ctx)
}

func (n *Narrator) poolerCell(tr *pipeline.Trace) {
	out := tr.Output
	n.heading("Pooler")
	n.prose("Only the context vector at position 0, the [CLS] slot, is kept. It passes through one",
		"learned affine map and a tanh, so every value lies in [-1, 1]. The result no longer",
		"depends on the sentence length: one fixed-size vector summarises the whole input.")
	n.field("Shape", formatShape(out.PooledShape()))
	n.field("Values", formatVector(out.Pooled, n.preview))
	lo, hi := minMax(out.Pooled)
	n.field("Value range", fmt.Sprintf("[%.4f, %.4f]", lo, hi))
	if len(out.BackendPooled) == len(out.Pooled) {
		n.field("Backend pooler", formatVector(out.BackendPooled, n.preview))
	}
}

func (n *Narrator) handoffCell(tr *pipeline.Trace) {
	n.heading("Hand-off")
	n.prose("The pooled vector is the one artifact this pipeline exists to produce. It is handed",
		"to the image-generation model as the conditioning embedding of the sentence.")
	n.field("Run", tr.RunID.String())
	n.field("Model", tr.ModelID)
	n.field("Elapsed", tr.Elapsed.String())
	t := tr.Output.Timings
	n.field("Stage timings", fmt.Sprintf("embed %s, encode %s, pool %s", t.Embed, t.Encode, t.Pool))
}

// Checks prints the outcome of pipeline.Check.
func (n *Narrator) Checks(results []pipeline.CheckResult) error {
	n.cell = 0
	n.heading("Pipeline contract checks")
	for _, r := range results {
		status := n.styles.pass.Render("PASS")
		switch {
		case r.Skipped:
			status = n.styles.prose.Render("SKIP")
		case !r.Passed:
			status = n.styles.fail.Render("FAIL")
		}
		n.w.printf("  %s  %-26s %s\n", status, r.Name, r.Detail)
	}
	return n.w.err
}

// Batch prints the pooled previews of several runs and their pairwise
// cosine similarities.
func (n *Narrator) Batch(traces []*pipeline.Trace, sim [][]float64) error {
	n.cell = 0
	n.heading("Sentence embeddings")
	for i, tr := range traces {
		n.w.printf("  [%d] %q\n      %s %s\n", i, tr.Text, formatShape(tr.Output.PooledShape()), formatVector(tr.Output.Pooled, n.preview))
	}
	if len(sim) > 1 {
		n.prose("Cosine similarity between pooled vectors:")
		for i, row := range sim {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = fmt.Sprintf("%7.4f", v)
			}
			n.w.printf("  [%d] %s\n", i, strings.Join(cells, " "))
		}
	}
	return n.w.err
}

// Vocab prints vocabulary entries.
func (n *Narrator) Vocab(prefix string, entries []tokenizer.VocabEntry) error {
	n.cell = 0
	n.heading(fmt.Sprintf("Vocabulary entries starting with %q", prefix))
	if len(entries) == 0 {
		n.prose("none")
		return n.w.err
	}
	for _, e := range entries {
		n.w.printf("  %6d  %s\n", e.ID, e.Token)
	}
	return n.w.err
}

func (n *Narrator) heading(title string) {
	n.cell++
	n.w.printf("\n%s\n", n.styles.heading.Render(fmt.Sprintf("[%d] %s", n.cell, title)))
}

func (n *Narrator) prose(lines ...string) {
	n.w.printf("%s\n", n.styles.prose.Render(strings.Join(lines, "\n")))
}

func (n *Narrator) field(label, value string) {
	n.w.printf("  %s %s\n", n.styles.label.Render(label+":"), value)
}

func (n *Narrator) block(header string, rows []string) {
	n.w.printf("%s\n", n.styles.box.Render(header+"\n"+strings.Join(rows, "\n")))
}

// vectors previews one row per token.
func (n *Narrator) vectors(tokens []string, h *model.Hidden) {
	rows := make([]string, h.SeqLen())
	for i := range rows {
		tok := ""
		if i < len(tokens) {
			tok = tokens[i]
		}
		rows[i] = fmt.Sprintf("%4d  %-14s %s", i, tok, formatVector(h.Row(i), n.preview))
	}
	n.block(fmt.Sprintf("pos   %-14s first %d of %d values", "piece", min(n.preview, h.Dim()), h.Dim()), rows)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
