package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/joltkit/jolt/internal/api"
	"github.com/spf13/cobra"
)

func newUserCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Verify and look up players",
	}
	cmd.AddCommand(newUserAuthCommand(a), newUserFetchCommand(a))
	return cmd
}

func newUserAuthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check the configured username and token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				ok, err := client.AuthUser(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("credentials were rejected")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "credentials verified")
				return err
			})
		},
	}
}

func newUserFetchCommand(a *app) *cobra.Command {
	var id int

	cmd := &cobra.Command{
		Use:   "fetch [username]",
		Short: "Show a player's profile (defaults to the configured username)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := api.UserQuery{ID: id}
			if len(args) == 1 {
				query.Username = args[0]
			}
			return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
				user, err := client.FetchUser(ctx, query)
				if err != nil {
					return err
				}
				fields := []string{
					"id", strconv.Itoa(user.ID),
					"username", user.Username,
					"type", string(user.Type),
					"status", string(user.Status),
					"signed_up", user.SignedUp,
					"last_logged_in", user.LastLoggedIn,
					"avatar_url", user.AvatarURL,
				}
				if developer, err := user.Developer(); err == nil {
					fields = append(fields,
						"developer_name", developer.Name,
						"developer_website", developer.Website,
					)
				}
				return writeFields(cmd.OutOrStdout(), fields...)
			})
		},
	}

	cmd.Flags().IntVar(&id, "id", 0, "look the player up by id instead of username")
	return cmd
}
