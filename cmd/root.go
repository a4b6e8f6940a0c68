package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ncmc/config"
	"ncmc/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ncmc",
	Short: "ncmc 将网易云音乐 .ncm 文件异步解码为可播放的音频",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   cfg.LogCompress,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
