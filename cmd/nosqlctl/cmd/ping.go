package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/ops"
)

func init() {
	rootCmd.AddCommand(pingCmd)
}

var pingCmd = &cobra.Command{
	Use:   "ping [table]",
	Short: "Put then Get a throwaway row against table",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		table := args[0]
		c := newClient()
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		row := fieldvalue.NewMap()
		row.Set("id", fieldvalue.Int(1))
		row.Set("pingedAt", fieldvalue.String(time.Now().UTC().Format(time.RFC3339)))

		if _, err := c.Put(ctx, table, row, ops.Options{}); err != nil {
			return fmt.Errorf("put: %w", err)
		}

		key := fieldvalue.NewMap()
		key.Set("id", fieldvalue.Int(1))
		res, err := c.Get(ctx, table, key, ops.Options{})
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		fmt.Printf("existed=%v version=%x\n", res.Existed, []byte(res.Version))
		return nil
	},
}
