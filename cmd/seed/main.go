// Command seed validates study files and stores them as the study served
// by the API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellping/internal/config"
	"wellping/internal/repository"
	"wellping/internal/study"
)

type mongoFlags struct {
	uri      string
	database string
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.Default()
	flags := &mongoFlags{}

	root := &cobra.Command{
		Use:          "seed",
		Short:        "Manage the study served by the wellping API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.uri, "mongo-uri", envOr("MONGO_URI", defaults.Mongo.URI), "MongoDB connection URI")
	root.PersistentFlags().StringVar(&flags.database, "database", envOr("MONGO_DATABASE", defaults.Mongo.Database), "MongoDB database")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "timeout for database operations")

	var listQuestions bool
	validateCmd := &cobra.Command{
		Use:   "validate <study.json>",
		Short: "Validate a study file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := study.LoadFile(args[0])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), st)
			if listQuestions {
				printQuestions(cmd.OutOrStdout(), st)
			}
			return nil
		},
	}
	validateCmd.Flags().BoolVarP(&listQuestions, "questions", "q", false, "list the question IDs of every stream")

	root.AddCommand(
		validateCmd,
		&cobra.Command{
			Use:   "load <study.json>",
			Short: "Validate a study file and store it as the current study",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := study.LoadFile(args[0])
				if err != nil {
					return err
				}
				return withDatabase(cmd.Context(), flags, func(ctx context.Context, db *mongo.Database) error {
					if err := repository.NewStudyRepo(db).SaveCurrent(ctx, st.Info().ID, st.Raw()); err != nil {
						return fmt.Errorf("failed to store study: %w", err)
					}
					printSummary(cmd.OutOrStdout(), st)
					fmt.Fprintln(cmd.OutOrStdout(), "stored as current study")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Summarize the stored study",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), flags, func(ctx context.Context, db *mongo.Database) error {
					raw, err := repository.NewStudyRepo(db).GetCurrent(ctx)
					if err != nil {
						return err
					}
					if raw == nil {
						return fmt.Errorf("no study stored in %s", flags.database)
					}
					st, err := study.Parse(raw)
					if err != nil {
						return fmt.Errorf("stored study is invalid: %w", err)
					}
					printSummary(cmd.OutOrStdout(), st)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "pings <username>",
			Short: "Show a participant's latest ping and its answers",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), flags, func(ctx context.Context, db *mongo.Database) error {
					return printLatestPing(ctx, cmd.OutOrStdout(), repository.NewPingRepo(db), repository.NewAnswerRepo(db), args[0])
				})
			},
		},
	)
	return root
}

func withDatabase(ctx context.Context, flags *mongoFlags, fn func(ctx context.Context, db *mongo.Database) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(flags.uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer client.Disconnect(context.Background())

	return fn(ctx, client.Database(flags.database))
}

func printSummary(w io.Writer, st *study.Study) {
	info := st.Info()
	fmt.Fprintf(w, "study %s (%s to %s)\n", info.ID, info.StartDate.Format(time.DateOnly), info.EndDate.Format(time.DateOnly))
	for _, name := range st.Streams() {
		g, _ := st.Graph(name)
		start, _ := st.StartingQuestionID(name)
		fmt.Fprintf(w, "  %-12s %3d questions, starts at %s\n", name, g.Len(), start)
	}
}

func printQuestions(w io.Writer, st *study.Study) {
	for _, name := range st.Streams() {
		g, _ := st.Graph(name)
		fmt.Fprintf(w, "%s:\n", name)
		for _, id := range g.IDs() {
			q, _ := g.Question(id)
			fmt.Fprintf(w, "  %-20s %s\n", id, q.Type)
		}
	}
}

func printLatestPing(ctx context.Context, w io.Writer, pings repository.PingRepo, answers repository.AnswerRepo, username string) error {
	ping, err := pings.Latest(ctx, username)
	if err != nil {
		return err
	}
	if ping == nil {
		fmt.Fprintf(w, "%s has no pings\n", username)
		return nil
	}
	status := "in progress"
	if ping.Completed() {
		status = "completed " + ping.EndTime.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "ping %s stream %s started %s, %s\n", ping.ID, ping.StreamName, ping.StartTime.Format(time.RFC3339), status)

	list, err := answers.ListByPing(ctx, ping.ID)
	if err != nil {
		return err
	}
	for _, a := range list {
		switch {
		case a.PreferNotToAnswer:
			fmt.Fprintf(w, "  %s: prefer not to answer\n", a.QuestionID)
		case a.NextWithoutOption:
			fmt.Fprintf(w, "  %s: skipped\n", a.QuestionID)
		default:
			fmt.Fprintf(w, "  %s: answered\n", a.QuestionID)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
