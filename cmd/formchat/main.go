package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/cobra"
	"github.com/tbxark/formchat/config"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/engine"
)

var (
	configPath string
	verbose    bool

	conf *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "formchat",
	Short: "Fill structured forms through a conversation with a language model",
	Long: `formchat asks for one field at a time, extracts the answers into a
form schema and reports the form complete once every field has a value.

Run "formchat serve" for the HTTP API or "formchat chat" for a terminal session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		conf, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := conf.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetLogLoggerLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, chatCmd, generateCmd)
}

// newEngine builds the turn engine from the loaded configuration.
func newEngine(cm model.BaseChatModel, docs document.Provider) *engine.Engine {
	opts := []engine.Option{
		engine.WithModel(conf.Model),
		engine.WithVisionModel(conf.Vision()),
		engine.WithMaxTokens(conf.MaxTokens),
		engine.WithTemperature(conf.Temperature),
		engine.WithLanguage(conf.Language),
	}
	if docs != nil {
		opts = append(opts, engine.WithDocumentProvider(docs))
	}
	return engine.New(cm, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
