package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joltkit/jolt/internal/api"
	"github.com/spf13/cobra"
)

func newScoresCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Read and submit high scores",
	}
	cmd.AddCommand(newScoresListCommand(a), newScoresAddCommand(a), newScoresTablesCommand(a))
	return cmd
}

func newScoresListCommand(a *app) *cobra.Command {
	var query api.ScoreQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scores from a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				scores, err := client.FetchScores(ctx, query)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(scores))
				for i, score := range scores {
					player := score.User
					if player == "" {
						player = score.Guest + " (guest)"
					}
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						player,
						score.Score,
						strconv.FormatInt(score.Sort, 10),
						score.Stored,
					})
				}
				return writeTable(cmd.OutOrStdout(), "no scores", []string{"#", "player", "score", "sort", "stored"}, rows)
			})
		},
	}

	cmd.Flags().IntVar(&query.Limit, "limit", 0, "maximum number of scores")
	cmd.Flags().IntVar(&query.TableID, "table", 0, "score table id (defaults to the primary table)")
	cmd.Flags().BoolVar(&query.UserScoped, "mine", false, "only the configured player's scores")
	return cmd
}

func newScoresAddCommand(a *app) *cobra.Command {
	var score api.NewScore

	cmd := &cobra.Command{
		Use:   "add <score> <sort>",
		Short: "Submit a score; score is the display string, sort orders it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sort, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sort %q: %w", args[1], err)
			}
			score.Score = args[0]
			score.Sort = sort
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				if err := client.AddScore(ctx, score); err != nil {
					return err
				}
				return writeFields(cmd.OutOrStdout(), "score", score.Score, "sort", args[1])
			})
		},
	}

	cmd.Flags().IntVar(&score.TableID, "table", 0, "score table id (defaults to the primary table)")
	cmd.Flags().StringVar(&score.ExtraData, "extra", "", "extra data stored with the score")
	cmd.Flags().StringVar(&score.Guest, "guest", "", "submit as a guest with this name")
	return cmd
}

func newScoresTablesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List score tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				tables, err := client.ScoreTables(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tables))
				for _, table := range tables {
					primary := ""
					if table.Primary {
						primary = "yes"
					}
					rows = append(rows, []string{strconv.Itoa(table.ID), table.Name, table.Description, primary})
				}
				return writeTable(cmd.OutOrStdout(), "no score tables", []string{"id", "name", "description", "primary"}, rows)
			})
		},
	}
}
