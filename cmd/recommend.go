package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/match"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/recommend"
	"github.com/spigell/jobmatch/internal/source"
)

const (
	PromptBack = "back"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank candidates for a job posting or job postings for a candidate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRecommend(cmd)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().String("job", "", "job posting id to recommend candidates for")
	recommendCmd.Flags().String("candidate", "", "candidate id to recommend job postings for")
	recommendCmd.Flags().IntP("top-k", "k", 0, "number of results (default from config)")
	recommendCmd.Flags().BoolP("interactive", "i", false, "pick results to explain after ranking")
	recommendCmd.MarkFlagsMutuallyExclusive("job", "candidate")
	recommendCmd.MarkFlagsOneRequired("job", "candidate")
}

func runRecommend(cmd *cobra.Command) error {
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
	topK, _ := cmd.Flags().GetInt("top-k")

	var result *recommend.Result
	switch {
	case jobID != "":
		job := ds.JobPool().FindByID(jobID)
		if job == nil {
			return fmt.Errorf("there is no such job id %s", jobID)
		}
		result, err = engine.RecommendCandidates(ctx, job, ds.Candidates, topK)
	default:
		candidate := ds.CandidatePool().FindByID(candidateID)
		if candidate == nil {
			return fmt.Errorf("there is no such candidate id %s", candidateID)
		}
		// Open filters in place, so work on a copy of the dataset's list.
		jobs := &profile.Jobs{Items: append([]*profile.JobPosting(nil), ds.Jobs...)}
		if closed := jobs.Open(); len(closed) > 0 {
			r.logger.Info("skipping closed job postings", zap.Strings("ids", closed))
		}
		result, err = engine.RecommendJobs(ctx, candidate, jobs.Items, topK)
	}
	if err != nil {
		return fmt.Errorf("recommendation failed: %w", err)
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		return drillDown(ctx, engine, ds, result)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// drillDown lets the user pick matches and prints their explanations until "back" is chosen.
func drillDown(ctx context.Context, engine *recommend.Engine, ds *source.Dataset, result *recommend.Result) error {
	if len(result.Matches) == 0 {
		fmt.Println("no matches")
		return nil
	}

	items := make([]string, 0, len(result.Matches)+1)
	for _, m := range result.Matches {
		items = append(items, fmt.Sprintf("%d %s / %s (similarity %.3f)",
			m.Rank, m.CandidateID, m.JobID, m.Similarity,
		))
	}

	for {
		matchPrompt := promptui.Select{
			Label: "Choose a match to explain and press ENTER",
			Items: append(items, PromptBack),
		}

		idx, selected, err := matchPrompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return nil
			}
			return err
		}
		if selected == PromptBack {
			return nil
		}

		m := result.Matches[idx]
		if m.Explanation == nil {
			explained, err := explainPair(ctx, engine, ds, m.CandidateID, m.JobID)
			if err != nil {
				return err
			}
			m = explained
		}
		fmt.Println(strings.TrimSpace(match.Format(*m.Explanation)))
		fmt.Println()
	}
}

func explainPair(ctx context.Context, engine *recommend.Engine, ds *source.Dataset, candidateID, jobID string) (match.Result, error) {
	candidate := ds.CandidatePool().FindByID(candidateID)
	if candidate == nil {
		return match.Result{}, fmt.Errorf("there is no such candidate id %s", candidateID)
	}
	job := ds.JobPool().FindByID(jobID)
	if job == nil {
		return match.Result{}, fmt.Errorf("there is no such job id %s", jobID)
	}
	return engine.ExplainMatch(ctx, candidate, job)
}
