package main

import (
	"log"

	"github.com/alexandre-normand/askscot"
	"github.com/alexandre-normand/askscot/ai"
	"github.com/alexandre-normand/askscot/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const name = "askscot"

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:           name,
		Short:         "askscot: a slack bot answering questions",
		Long:          "askscot answers mentions and direct messages in slack, with a language model when ANTHROPIC_API_KEY is set, and echoes the /echo slash command.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cfgFile, debug, cmd.Flags().Changed("debug"))
			if err != nil {
				log.Printf("Error: %v\n", err)
				return err
			}

			return run(v)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "configuration file (yaml, json or toml)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

// loadConfig layers the configuration from defaults, the optional configuration file, the .env
// files and the environment, in increasing order of precedence. debug is only applied when set
// on the command line
func loadConfig(cfgFile string, debug bool, debugSet bool) (v *viper.Viper, err error) {
	if err = config.LoadDotEnv(); err != nil {
		return nil, err
	}

	v = config.NewViperWithDefaults()
	if err = config.BindEnv(v); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		if err = config.ReadConfigFile(v, cfgFile); err != nil {
			return nil, err
		}
	}

	if debugSet {
		v.Set(config.DebugKey, debug)
	}

	if err = config.ValidateCredentials(v); err != nil {
		return nil, err
	}

	return v, nil
}

// run builds askscot from the configuration and runs it until interrupted
func run(v *viper.Viper) (err error) {
	b := askscot.NewBot(name, v, askscot.OptionMeter(otel.GetMeterProvider().Meter(name)))

	if config.AIEnabled(v) {
		b = b.WithAnswerProviderErr(ai.NewClaude(v.GetString(config.AIAPIKeyKey)))
	} else {
		log.Printf("%s is not set, questions get deterministic replies\n", config.AIAPIKeyEnv)
	}

	bot, err := b.Build()
	if err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}

	if err = bot.Run(); err != nil {
		log.Printf("Error: %v\n", err)
		return err
	}

	return nil
}
