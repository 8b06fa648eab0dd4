package main

import (
	"fmt"
	"io"

	internal "github.com/ZanzyTHEbar/bertwalk/bertwalk"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/config"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/embedding/tokenizer"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/model"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/narrate"
	"github.com/ZanzyTHEbar/bertwalk/bertwalk/pipeline"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries the global flags and the state built from them.
type app struct {
	configPath string
	backend    string
	modelDir   string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           internal.DefaultAppName,
		Short:         "Walk a sentence through the BERT forward pass",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: search ./config.yaml, ~/.config/bertwalk)")
	flags.StringVar(&a.backend, "backend", "", "model backend: onnx or synthetic")
	flags.StringVar(&a.modelDir, "model-dir", "", "directory holding vocab.txt, model.safetensors and model.onnx")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		walkCmd(a),
		tokenizeCmd(a),
		embedCmd(a),
		checkCmd(a),
		vocabCmd(a),
		providersCmd(a),
	)
	return rootCmd
}

// load reads the config and applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Model.Backend = a.backend
	}
	if flags.Changed("model-dir") {
		cfg.Model.Dir = a.modelDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = internal.GetLeveledLogger(cfg.Log.Level)
	return nil
}

func (a *app) tokenizer() (tokenizer.Tokenizer, error) {
	tok, err := tokenizer.New(tokenizer.Config{
		Kind:      a.cfg.Model.Tokenizer,
		VocabPath: a.cfg.Model.VocabPath(),
		MaxSeqLen: a.cfg.Model.MaxSeqLen,
		Truncate:  a.cfg.Model.Truncate,
	})
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return tok, nil
}

// pipeline builds the tokenizer and model. The caller closes the model.
func (a *app) pipeline() (*pipeline.Pipeline, *model.Model, error) {
	tok, err := a.tokenizer()
	if err != nil {
		return nil, nil, err
	}
	mc := model.DefaultConfig()
	mc.VocabSize = tok.Vocab().Size()

	m, err := model.Open(model.Options{
		Backend:     a.cfg.Model.Backend,
		Config:      mc,
		WeightsPath: a.cfg.Model.WeightsPath(),
		Seed:        a.cfg.Model.Seed,
		ONNX: model.ONNXOptions{
			ModelPath:         a.cfg.Model.ONNXPath(),
			SharedLibrary:     a.cfg.ONNX.SharedLibrary,
			ExecutionProvider: a.cfg.ONNX.ExecutionProvider,
			DeviceID:          a.cfg.ONNX.DeviceID,
		},
	}, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("open model: %w", err)
	}
	a.log.Debug().
		Str("backend", a.cfg.Model.Backend).
		Str("encoder", m.EncoderName()).
		Int("vocab", mc.VocabSize).
		Msg("model ready")

	p := pipeline.New(a.cfg.Model.ID, tok, m,
		pipeline.WithWorkers(a.cfg.Batch.Workers),
		pipeline.WithLogger(a.log),
	)
	return p, m, nil
}

func (a *app) narrator(w io.Writer) *narrate.Narrator {
	return narrate.New(w, a.cfg.Walkthrough.Preview, a.cfg.Walkthrough.Color)
}

// sentence returns the first argument or the configured default sentence.
func (a *app) sentence(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Walkthrough.Sentence
}
