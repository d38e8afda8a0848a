// Package main is the train_classifier CLI: it trains the disaster
// response message classifier from a SQLite database and saves the model.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/config"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "train_classifier <database_path> <model_output_path>",
		Short: "Train the disaster response message classifier",
		Long: `train_classifier loads labeled disaster response messages from a SQLite
database, fits a TF-IDF and random forest pipeline with one classifier per
category, prints a classification report for every category on a held-out
test set and saves the trained model.`,
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: initConfig,
		RunE:              runTrain,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/train_classifier/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("table", "", "table holding the messages (default: database file name without extension)")
	rootCmd.PersistentFlags().Bool("infer-categories", false, "take the last 36 columns of the table as categories")
	rootCmd.PersistentFlags().Bool("progress", true, "show a progress bar on stderr")

	rootCmd.Flags().Int64("seed", 0, "train/test split seed (0 = random)")
	rootCmd.Flags().Float64("test-size", 0.2, "share of messages held out for evaluation")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("data.table", rootCmd.PersistentFlags().Lookup("table"))
	_ = viper.BindPFlag("data.infer_categories", rootCmd.PersistentFlags().Lookup("infer-categories"))
	_ = viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))
	_ = viper.BindPFlag("split.seed", rootCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("split.test_size", rootCmd.Flags().Lookup("test-size"))

	// Add commands
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// Set up config file
	if cfgFile != "" {
		path := config.ExpandPath(cfgFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", common.ErrMissingConfig, path)
		}
		viper.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(fmt.Sprintf("%s/.config/train_classifier", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	config.BindEnv(viper.GetViper())

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := common.SetupLogger(viper.GetString("logging.level"), viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		slog.Debug("Loaded config file", "path", used)
	}

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "train_classifier %s\n", version)
		},
	}
}
