package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/spigell/jobmatch/internal/match"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain how a candidate matches a job posting",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runExplain(cmd)
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().String("job", "", "job posting id")
	explainCmd.Flags().String("candidate", "", "candidate id")
	explainCmd.Flags().BoolP("text", "t", false, "human readable output instead of json")
	explainCmd.MarkFlagRequired("job")
	explainCmd.MarkFlagRequired("candidate")
}

func runExplain(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	ds, err := r.dataset(ctx)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}

	jobID, _ := cmd.Flags().GetString("job")
	candidateID, _ := cmd.Flags().GetString("candidate")

	result, err := explainPair(ctx, engine, ds, candidateID, jobID)
	if err != nil {
		return err
	}

	if text, _ := cmd.Flags().GetBool("text"); text {
		fmt.Print(match.Format(*result.Explanation))
		return nil
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
