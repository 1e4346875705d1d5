package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/app"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/document"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "extractctl",
		Short:         "Run field extraction against the configured NLP services",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to extractor.yaml (defaults to the project root)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newExtractCmd(g), newLabelsCmd(g))
	return root
}

func (g *globalFlags) loadConfig() (*config.ExtractionConfig, error) {
	if g.configPath == "" {
		return config.GetExtractionConfig()
	}
	v := viper.New()
	v.SetConfigFile(g.configPath)
	return config.LoadExtractionConfig(v)
}

// runtime builds an offline service: no queue, cache or archive.
func (g *globalFlags) runtime(ctx context.Context) (*app.Runtime, logger.Logger, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(
		logger.WithLevel(g.logLevel),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return nil, nil, err
	}
	rt, err := app.Build(ctx, cfg, log, false)
	if err != nil {
		return nil, nil, err
	}
	return rt, log, nil
}

// openUpload opens a document for the file-based commands.
func openUpload(path string) (document.Upload, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return document.Upload{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return document.Upload{}, nil, err
	}
	return document.Upload{Name: info.Name(), Size: info.Size(), Reader: f}, f.Close, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
