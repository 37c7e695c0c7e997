// Package cmd provides the CLI commands for zeno.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zenostudy/zeno/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "zeno",
	Short: "Zeno - form security gateway",
	Long: `Zeno is a security gateway for the Zeno study group app.

It sits between the browser and the hosted backend and enforces input
sanitization, CSRF token rotation, per-operation rate limits, and
submission policy rules on every form submission.

Quick start:
  1. Create a config file: zeno.yaml
  2. Run: zeno start

Configuration:
  Config is loaded from zeno.yaml in the current directory,
  $HOME/.zeno/, or /etc/zeno/.

  Environment variables can override config values with the ZENO_ prefix.
  Example: ZENO_SERVER_HTTP_ADDR=127.0.0.1:9090

Commands:
  start       Start the gateway server
  stop        Stop the running server
  hash-key    Hash an admin API key for the config file
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./zeno.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
