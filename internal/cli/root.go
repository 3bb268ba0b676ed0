// Package cli implements the docctl command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pai-docqa-go/internal/app"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/pkg/log"
)

var (
	configPath string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "docctl",
	Short: "Ingest documents and ask questions offline",
	Long: `docctl runs the ingestion pipeline and the query engines in-process,
using the object store and status store named in the config file.`,
	SilenceUsage: true,
}

// newApp builds the component graph. Tests replace it to inject fakes.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigPath() string {
	if p := os.Getenv("DOCQA_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("./configs/config.yaml"); err == nil {
		return "./configs/config.yaml"
	}
	return ""
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	// 命令行总是同步处理，不依赖外部队列
	cfg.Queue.Driver = "memory"
	log.Init(cfg.Log.Level, "console", "")
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise: %w", err)
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
