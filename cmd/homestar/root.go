package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ipvm-wg/homestar/settings"
)

var (
	log zerolog.Logger
	v   = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "homestar",
	Short: "Run a peer-to-peer Wasm workflow node",
}

// Execute is the CLI's single entry point, called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	flags := pflag.NewFlagSet("homestar", pflag.ExitOnError)
	settings.BindFlags(flags, settings.Default())
	rootCmd.PersistentFlags().AddFlagSet(flags)

	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}

	rootCmd.AddCommand(runCmd, keygenCmd, workflowCmd, versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	v.SetEnvPrefix("homestar")
	v.AutomaticEnv()
}

func loadSettings() settings.Config {
	cfg, err := settings.FromViper(v)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}
