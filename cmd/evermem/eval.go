package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evermem/evermem-go/pkg/evaluation"
	"github.com/evermem/evermem-go/pkg/logging"
)

// buildEvalCmd creates the "eval" command group for the LOCOMO benchmark.
func buildEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the LOCOMO benchmark stages",
		Long: `Run the LOCOMO long-conversation benchmark against the configured memory
service, stage by stage:

  add     ingest every conversation, one user id per speaker
  search  answer the question set from retrieved memories
  judge   grade the answers and print per-category accuracy`,
	}
	cmd.AddCommand(
		buildEvalAddCmd(),
		buildEvalSearchCmd(),
		buildEvalJudgeCmd(),
	)
	return cmd
}

func buildEvalAddCmd() *cobra.Command {
	var datasetPath string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Ingest the benchmark conversations into memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := evaluation.LoadDataset(datasetPath)
			if err != nil {
				return err
			}

			client, cfg, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			logger := logging.New(cfg.Debug)
			defer logger.Sync()

			runID := uuid.NewString()
			logger.Info("starting benchmark ingest",
				"run_id", runID,
				"dataset", datasetPath,
				"conversations", len(items),
			)

			adder := evaluation.NewAdder(client, logger)
			if err := adder.ProcessAll(cmd.Context(), items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d conversations (run %s).\n", len(items), runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "locomo10.json", "Path to the LOCOMO dataset JSON")
	return cmd
}

func buildEvalSearchCmd() *cobra.Command {
	var (
		datasetPath string
		outputPath  string
		topK        int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Answer the benchmark questions from retrieved memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := evaluation.LoadDataset(datasetPath)
			if err != nil {
				return err
			}

			client, cfg, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			logger := logging.New(cfg.Debug)
			defer logger.Sync()

			runID := uuid.NewString()
			logger.Info("starting benchmark search",
				"run_id", runID,
				"dataset", datasetPath,
				"top_k", topK,
			)

			searcher := evaluation.NewSearcher(client, topK, logger)
			report, err := searcher.ProcessDataset(cmd.Context(), items)
			if err != nil {
				return err
			}
			if err := report.Save(outputPath); err != nil {
				return err
			}

			questions := 0
			for _, results := range report {
				questions += len(results)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Answered %d questions, results saved to %s (run %s).\n", questions, outputPath, runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "locomo10.json", "Path to the LOCOMO dataset JSON")
	cmd.Flags().StringVar(&outputPath, "output", "search_results.json", "Where to write the search results")
	cmd.Flags().IntVar(&topK, "top-k", 30, "Memories retrieved per speaker per question")
	return cmd
}

func buildEvalJudgeCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Grade the benchmark answers and print per-category accuracy",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := evaluation.LoadReport(inputPath)
			if err != nil {
				return err
			}

			client, cfg, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			logger := logging.New(cfg.Debug)
			defer logger.Sync()

			judge := evaluation.NewJudge(client.LLM(), logger)
			scores, err := judge.GradeReport(cmd.Context(), report)
			if err != nil {
				return err
			}
			if err := scores.Save(outputPath); err != nil {
				return err
			}

			perCategory, overall := evaluation.Summarize(scores)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Mean scores per category:")
			for _, summary := range perCategory {
				fmt.Fprintf(out, "  category %d: bleu=%.4f f1=%.4f llm=%.4f s1_time=%.4fs s2_time=%.4fs resp_time=%.4fs count=%d\n",
					summary.Category, summary.BLEUScore, summary.F1Score, summary.LLMScore,
					summary.Speaker1MemoryTime, summary.Speaker2MemoryTime, summary.ResponseTime, summary.Count)
			}
			fmt.Fprintln(out, "Overall:")
			fmt.Fprintf(out, "  bleu=%.4f f1=%.4f llm=%.4f count=%d\n",
				overall.BLEUScore, overall.F1Score, overall.LLMScore, overall.Count)
			fmt.Fprintf(out, "Scores saved to %s.\n", outputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "search_results.json", "Search results to grade")
	cmd.Flags().StringVar(&outputPath, "output", "eval_metrics.json", "Where to write the per-question scores")
	return cmd
}
