package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"progressdb/nosqldb/pkg/ops"
)

func init() {
	rootCmd.AddCommand(putCmd)
}

var putCmd = &cobra.Command{
	Use:   "put [table] [field=value ...]",
	Short: "Write a row unconditionally",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		table := args[0]
		row, err := parseFields(args[1:])
		if err != nil {
			return err
		}

		c := newClient()
		defer c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		res, err := c.Put(ctx, table, row, ops.Options{})
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("success=%v version=%x\n", res.Success, []byte(res.Version))
		return nil
	},
}
