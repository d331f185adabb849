package main

import (
	"context"
	"fmt"

	"github.com/joltkit/jolt/internal/api"
	"github.com/spf13/cobra"
)

func newDataCommand(a *app) *cobra.Command {
	var userScoped bool

	cmd := &cobra.Command{
		Use:   "data",
		Short: "Read and write the cloud data store",
	}
	cmd.PersistentFlags().BoolVar(&userScoped, "user", false, "use the configured player's store instead of the game's")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the raw value stored under key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
					value, err := client.DataFetch(ctx, api.DataQuery{Key: args[0], UserScoped: userScoped})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store value under key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
					return client.DataSet(ctx, api.DataQuery{Key: args[0], UserScoped: userScoped}, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "update <key> <operation> <value>",
			Short: "Apply add, subtract, multiply, divide, append or prepend to a stored value",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				operation, err := api.ParseDataOperation(args[1])
				if err != nil {
					return err
				}
				return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
					value, err := client.DataUpdate(ctx, api.DataQuery{Key: args[0], UserScoped: userScoped}, operation, args[2])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "remove <key>",
			Short: "Delete the value stored under key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
					return client.DataRemove(ctx, api.DataQuery{Key: args[0], UserScoped: userScoped})
				})
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withClient(cmd, func(ctx context.Context, client *api.Client) error {
					keys, err := client.DataKeys(ctx, userScoped)
					if err != nil {
						return err
					}
					rows := make([][]string, 0, len(keys))
					for _, key := range keys {
						rows = append(rows, []string{key})
					}
					return writeTable(cmd.OutOrStdout(), "no keys", []string{"key"}, rows)
				})
			},
		},
	)
	return cmd
}
