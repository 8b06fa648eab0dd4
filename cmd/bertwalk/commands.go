package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/pipeline"

	"github.com/spf13/cobra"
)

func walkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "walk [text]",
		Short: "Narrate every stage of the forward pass for one sentence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, m, err := a.pipeline()
			if err != nil {
				return err
			}
			defer m.Close()

			tr, err := p.Run(cmd.Context(), a.sentence(args))
			if err != nil {
				return err
			}
			return a.narrator(cmd.OutOrStdout()).Walk(tr)
		},
	}
}

func tokenizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize [text]",
		Short: "Show the token ids and sub-word pieces of a sentence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.tokenizer()
			if err != nil {
				return err
			}
			text := a.sentence(args)
			enc, err := tok.Encode(text)
			if err != nil {
				return err
			}
			tr := &pipeline.Trace{Text: text, Encoding: enc, Decoded: tok.Decode(enc.IDs)}
			return a.narrator(cmd.OutOrStdout()).Tokens(tr)
		},
	}
}

func embedCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "embed [text...]",
		Short: "Compute pooled sentence embeddings and their similarities",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if len(texts) == 0 {
				texts = []string{a.cfg.Walkthrough.Sentence}
			}
			p, m, err := a.pipeline()
			if err != nil {
				return err
			}
			defer m.Close()

			traces, err := p.EmbedBatch(cmd.Context(), texts)
			if err != nil {
				return err
			}
			sim, err := pipeline.SimilarityMatrix(traces)
			if err != nil {
				return err
			}
			if err := a.narrator(cmd.OutOrStdout()).Batch(traces, sim); err != nil {
				return err
			}
			if out == "" {
				return nil
			}
			if out == "-" {
				return pipeline.WriteHandoff(cmd.OutOrStdout(), traces...)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create hand-off file: %w", err)
			}
			if err := pipeline.WriteHandoff(f, traces...); err != nil {
				_ = f.Close()
				return err
			}
			a.log.Info().Str("path", out).Int("vectors", len(traces)).Msg("wrote hand-off file")
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the pooled vectors as JSON to this file (\"-\" for stdout)")
	return cmd
}

var errChecksFailed = errors.New("pipeline checks failed")

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [text]",
		Short: "Verify the pipeline contracts on one sentence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, m, err := a.pipeline()
			if err != nil {
				return err
			}
			defer m.Close()

			results, _, err := p.Check(cmd.Context(), a.sentence(args))
			if err != nil {
				return err
			}
			if err := a.narrator(cmd.OutOrStdout()).Checks(results); err != nil {
				return err
			}
			if !pipeline.Passed(results) {
				return errChecksFailed
			}
			return nil
		},
	}
}

func vocabCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "vocab <prefix>",
		Short: "List vocabulary entries that start with a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.tokenizer()
			if err != nil {
				return err
			}
			entries := tok.Vocab().WithPrefix(args[0], limit)
			return a.narrator(cmd.OutOrStdout()).Vocab(args[0], entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}

func providersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the ONNX Runtime execution providers this build can request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eps, err := model.ListONNXProviders()
			if err != nil {
				return err
			}
			for _, ep := range eps {
				marker := " "
				if ep == a.cfg.ONNX.ExecutionProvider {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, ep)
			}
			return nil
		},
	}
}
