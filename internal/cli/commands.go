package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"placement-service/internal/config"
	"placement-service/internal/domain"
	"placement-service/internal/questionbank"
	transport "placement-service/internal/transport/http"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewSweepCmd submits every in-progress attempt whose time box has closed.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Submit attempts that ran out of time",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			n, err := rt.attempts.SweepExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %d expired attempt(s)\n", n)
			return err
		},
	}
}

// NewRoundsCmd prints the per-round progression of one job.
func NewRoundsCmd(configPath *string) *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Show pending, passed and failed candidates per assessment round",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				return errors.New("--job is required")
			}
			setupLogging()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			summary, err := rt.rounds.Summary(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			renderRounds(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	return cmd
}

func renderRounds(w io.Writer, summary domain.RoundSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Round", "Assessment", "Pass Mark", "Pending", "Passed", "Failed"})
	for i, r := range summary.Rounds {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Title,
			fmt.Sprintf("%d%%", r.PassingScore),
			fmt.Sprintf("%d", len(r.Pending)),
			fmt.Sprintf("%d", len(r.Passed)),
			fmt.Sprintf("%d", len(r.Failed)),
		})
	}
	table.Render()
	fmt.Fprintf(w, "survivors (%d): %s\n", len(summary.Survivors), strings.Join(summary.Survivors, ", "))
}

// NewImportQuestionsCmd loads a YAML question bank and attaches it to a draft assessment.
func NewImportQuestionsCmd(configPath *string) *cobra.Command {
	var assessmentID, file string
	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Attach questions from a YAML bank to a draft assessment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if assessmentID == "" || file == "" {
				return errors.New("--assessment and --file are required")
			}
			setupLogging()
			questions, err := questionbank.Load(cmd.Context(), file)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			updated, err := rt.assessments.AddQuestions(cmd.Context(), assessmentID, questions)
			if err != nil {
				return err
			}
			slog.Info("questions imported", slog.String("assessment_id", updated.ID), slog.Int("questions", updated.QuestionCount), slog.Int("total_marks", updated.TotalMarks))
			fmt.Fprintf(cmd.OutOrStdout(), "assessment %s now holds %d questions (%d marks)\n", updated.ID, updated.QuestionCount, updated.TotalMarks)
			return nil
		},
	}
	cmd.Flags().StringVar(&assessmentID, "assessment", "", "draft assessment id")
	cmd.Flags().StringVar(&file, "file", "", "path to the YAML question bank")
	return cmd
}

// NewTokenCmd signs a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		id   string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := domain.Actor{ID: id, Role: domain.Role(role)}
			if actor.ID == "" || !actor.Role.Valid() {
				return errors.New("--id and a valid --role (student, mentor, recruiter, placement_office) are required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			tok, err := transport.IssueToken(cfg.Auth.JWTSecret, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "actor role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
