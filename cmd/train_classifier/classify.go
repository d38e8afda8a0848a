package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Veraticus/disaster-response-pipeline/internal/cli"
	"github.com/Veraticus/disaster-response-pipeline/internal/config"
	"github.com/Veraticus/disaster-response-pipeline/internal/persist"
	"github.com/Veraticus/disaster-response-pipeline/internal/pipeline"
	"github.com/Veraticus/disaster-response-pipeline/internal/text"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "classify <model_path> <message>...",
		Short:   "Predict the categories of messages with a saved model",
		Example: `  train_classifier classify classifier.pkl "We need water and food in Leogane"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := text.NewNormalizer()
			if err != nil {
				return err
			}
			return classify(afero.NewOsFs(), tok, config.ExpandPath(args[0]), args[1:], cmd.OutOrStdout())
		},
	}
}

func classify(fs afero.Fs, tok pipeline.Tokenizer, modelPath string, messages []string, out io.Writer) error {
	pl, err := persist.Load(fs, modelPath, tok)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	pred, err := pl.Predict(messages)
	if err != nil {
		return err
	}
	proba, err := pl.PredictProba(messages)
	if err != nil {
		return err
	}

	categories := pl.Categories()
	for i, msg := range messages {
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", cli.StyleTitle(msg))
		positive := pred[i].Positive()
		if len(positive) == 0 {
			fmt.Fprintf(&b, "  %s\n", cli.SubtleStyle.Render("(no categories)"))
		}
		for _, j := range positive {
			fmt.Fprintf(&b, "  %s %s\n", categories[j], cli.SubtleStyle.Render(fmt.Sprintf("(%.2f)", proba[i][j])))
		}
		if _, err := fmt.Fprint(out, b.String()); err != nil {
			return err
		}
	}
	return nil
}
