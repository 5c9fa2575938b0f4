package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/source"
	"github.com/spigell/jobmatch/internal/tower"
	"github.com/spigell/jobmatch/internal/training"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the towers on the positive interactions of the dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTrain(cmd)
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().IntP("epochs", "e", training.DefaultConfig().Epochs, "number of epochs")
	trainCmd.Flags().Bool("fresh", false, "start from fresh towers even when the checkpoint exists")

	viper.BindPFlag("training.epochs", trainCmd.Flags().Lookup("epochs"))
}

func runTrain(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	if fresh, _ := cmd.Flags().GetBool("fresh"); fresh && r.trained {
		if r.candidate, r.job, err = tower.NewPair(r.config.Tower); err != nil {
			return fmt.Errorf("build towers: %w", err)
		}
		r.logger.Info("training fresh towers", zap.String("checkpoint", r.config.Checkpoint))
	}

	ds, err := r.dataset(ctx)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	pairs, dangling := ds.Positives()
	if len(dangling) > 0 {
		r.logger.Warn("interactions reference unknown entities", zap.Int("count", len(dangling)))
	}
	if len(pairs) == 0 {
		return errors.New("the dataset has no positive interactions to train on")
	}

	train, held := source.Split(pairs, r.config.Training.ValidationSplit, r.config.Training.Seed)
	r.logger.Info("starting training",
		zap.Int("train_pairs", len(train)),
		zap.Int("validation_pairs", len(held)),
		zap.Int("epochs", r.config.Training.Epochs),
	)

	trainer, err := training.New(r.candidate, r.job, r.extractor, r.config.Training.Config, r.logger)
	if err != nil {
		return err
	}

	report, err := trainer.Fit(ctx, examples(train), examples(held))
	if err != nil {
		var diverged *training.TrainingDivergedError
		if errors.As(err, &diverged) {
			r.logger.Error("training diverged, the checkpoint is left untouched", zap.Error(err))
		}
		return err
	}

	if err := tower.SaveCheckpoint(r.config.Checkpoint, r.candidate, r.job); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	last := report.Epochs[len(report.Epochs)-1]
	r.logger.Info("training finished",
		zap.String("checkpoint", r.config.Checkpoint),
		zap.Float64("train_loss", last.TrainLoss),
		zap.Float64("validation_loss", last.ValidationLoss),
		zap.Float64("ndcg", last.NDCG),
	)
	return nil
}

func examples(pairs []source.Pair) []training.Example {
	out := make([]training.Example, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, training.Example{Candidate: p.Candidate, Job: p.Job})
	}
	return out
}
