// Command nosqlping is a minimal Put/Get/GetTable smoke test against a
// running endpoint, the driver analogue of the teacher's
// cmd/progressdb/main.go bootstrap: load .env, build one top-level
// client, exercise it, exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	nosqldb "progressdb/nosqldb"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/ops"
)

func main() {
	_ = godotenv.Load(".env") // load .env if present (no error if missing)

	endpoint := flag.String("endpoint", envOrDefault("NOSQL_ENDPOINT", "http://localhost:8080"), "NoSQL proxy endpoint")
	table := flag.String("table", "pingTable", "table to Put/Get against")
	timeout := flag.Duration("timeout", 10*time.Second, "overall operation timeout")
	flag.Parse()

	c := nosqldb.New(nosqldb.Config{Endpoint: *endpoint})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := ping(ctx, c, *table); err != nil {
		log.Fatalf("nosqlping: %v", err)
	}
	fmt.Println("nosqlping: ok")
}

func ping(ctx context.Context, c *nosqldb.Client, table string) error {
	row := fieldvalue.NewMap()
	row.Set("id", fieldvalue.Int(1))
	row.Set("pingedAt", fieldvalue.String(time.Now().UTC().Format(time.RFC3339)))

	putRes, err := c.Put(ctx, table, row, ops.Options{})
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if !putRes.Success {
		return fmt.Errorf("put: server reported failure")
	}

	key := fieldvalue.NewMap()
	key.Set("id", fieldvalue.Int(1))
	getRes, err := c.Get(ctx, table, key, ops.Options{})
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !getRes.Existed {
		return fmt.Errorf("get: row vanished immediately after put")
	}

	tableRes, err := c.GetTable(ctx, table, ops.Options{})
	if err != nil {
		return fmt.Errorf("get table: %w", err)
	}
	fmt.Printf("table %q state=%s read=%d write=%d\n", table, tableRes.State, tableRes.Limits.ReadUnits, tableRes.Limits.WriteUnits)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
