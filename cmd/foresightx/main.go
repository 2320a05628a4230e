package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"ForesightX/internal/config"
	"ForesightX/pkg/logger"
)

var (
	configPath string
	logLevel   string

	// cfg 在 PersistentPreRunE 中加载，供所有子命令使用。
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "foresightx",
	Short: "ForesightX prediction market agent for the Movement network",
	Long: `ForesightX is a chat agent that turns conversations into Movement
transactions: prediction markets, contract calls and MOVE transfers.

The config file is read from --config, then $FORESIGHTX_CONFIG, then
configs/foresightx.json. Built-in defaults apply when none exists.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// setup 加载配置并初始化日志。serve 以外的命令默认把日志写到 stderr，避免混入输出。
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	if path == "" {
		path = filepath.Join("configs", "foresightx.json")
	}
	loaded, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	outputs := loaded.Logging.Outputs
	if len(outputs) == 0 && cmd.Name() != serveCmd.Name() {
		outputs = []string{"stderr"}
	}
	if err := logger.Init(logger.Config{
		Level:       loaded.Logging.Level,
		Format:      loaded.Logging.Format,
		OutputPaths: outputs,
		Audit: logger.AuditConfig{
			Enabled:    loaded.Logging.Audit.Enabled,
			Path:       loaded.Logging.Audit.Path,
			MaxSizeMB:  loaded.Logging.Audit.MaxSizeMB,
			MaxBackups: loaded.Logging.Audit.MaxBackups,
			MaxAgeDays: loaded.Logging.Audit.MaxAgeDays,
			Compress:   loaded.Logging.Audit.Compress,
		},
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg = loaded
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
