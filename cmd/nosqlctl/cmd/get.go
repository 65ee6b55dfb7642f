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
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get [table] [field=value ...]",
	Short: "Fetch a row by primary key",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		table := args[0]
		key, err := parseFields(args[1:])
		if err != nil {
			return err
		}

		c := newClient()
		defer c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		res, err := c.Get(ctx, table, key, ops.Options{})
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if !res.Existed {
			fmt.Println("no such row")
			return nil
		}
		for _, k := range res.Row.SortedKeys() {
			v, _ := res.Row.Get(k)
			fmt.Printf("%s = %v\n", k, renderValue(v))
		}
		return nil
	},
}

// parseFields turns a list of "name=value" strings into a MapValue,
// treating values parseable as int32 as TypeInteger and everything else
// as TypeString. Good enough for a demo CLI; real callers should build
// fieldvalue.Value directly.
func parseFields(args []string) (*fieldvalue.MapValue, error) {
	m := fieldvalue.NewMap()
	for _, a := range args {
		name, value, ok := splitOnce(a, '=')
		if !ok {
			return nil, fmt.Errorf("invalid field %q: want name=value", a)
		}
		m.Set(name, parseScalar(value))
	}
	return m, nil
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func parseScalar(s string) fieldvalue.Value {
	var n int32
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprintf("%d", n) == s {
		return fieldvalue.Int(n)
	}
	return fieldvalue.String(s)
}

func renderValue(v fieldvalue.Value) interface{} {
	switch v.Type() {
	case fieldvalue.TypeInteger:
		return v.AsInt()
	case fieldvalue.TypeLong:
		return v.AsLong()
	case fieldvalue.TypeDouble:
		return v.AsDouble()
	case fieldvalue.TypeBoolean:
		return v.AsBool()
	case fieldvalue.TypeString:
		return v.AsString()
	default:
		return v.Type().String()
	}
}
