package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/joltkit/jolt/internal/api"
	"github.com/spf13/cobra"
)

func newTrophiesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trophies",
		Short: "List and award trophies",
	}
	cmd.AddCommand(newTrophiesListCommand(a), newTrophiesAwardCommand(a))
	return cmd
}

func newTrophiesListCommand(a *app) *cobra.Command {
	var (
		ids        []int
		achieved   bool
		unachieved bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured player's trophies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if achieved && unachieved {
				return errors.New("--achieved and --unachieved are mutually exclusive")
			}
			query := api.TrophyQuery{IDs: ids}
			if achieved || unachieved {
				query.Achieved = &achieved
			}
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				trophies, err := client.FetchTrophies(ctx, query)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(trophies))
				for _, trophy := range trophies {
					rows = append(rows, []string{
						strconv.Itoa(trophy.ID),
						trophy.Title,
						string(trophy.Difficulty),
						trophy.Achieved,
					})
				}
				return writeTable(cmd.OutOrStdout(), "no trophies", []string{"id", "title", "difficulty", "achieved"}, rows)
			})
		},
	}

	cmd.Flags().IntSliceVar(&ids, "id", nil, "only these trophy ids")
	cmd.Flags().BoolVar(&achieved, "achieved", false, "only achieved trophies")
	cmd.Flags().BoolVar(&unachieved, "unachieved", false, "only trophies not yet achieved")
	return cmd
}

func newTrophiesAwardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "award <trophy-id>",
		Short: "Mark a trophy achieved for the configured player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid trophy id %q: %w", args[0], err)
			}
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				if err := client.AwardTrophy(ctx, id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "trophy %d awarded\n", id)
				return err
			})
		},
	}
}
