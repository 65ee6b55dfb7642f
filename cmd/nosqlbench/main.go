// Command nosqlbench drives sustained Put traffic at a fixed rate using
// vegeta's attack engine, encoding one representative PutRequest with
// the driver's own wire layer (pkg/protocol + pkg/buffer) and firing it
// repeatedly. In parallel it runs a pkg/ratelimit.SimpleRateLimiter at
// the same rate so the two delay accountings can be compared side by
// side (spec §8 property 8: rate-limiter delay is proportional to
// demand in excess of the configured rate).
//
// Grounded on the pack's clients/bench module (flag-driven load
// generator against a running service) and clients/cli's declared
// tsenart/vegeta dependency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	vegeta "github.com/tsenart/vegeta/lib"

	"progressdb/nosqldb/pkg/buffer"
	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/protocol"
	"progressdb/nosqldb/pkg/ratelimit"
	"progressdb/nosqldb/pkg/wirebinary"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080", "NoSQL proxy endpoint")
	table := flag.String("table", "benchTable", "table to Put against")
	rps := flag.Int("rps", 200, "requests per second")
	duration := flag.Duration("duration", 10*time.Second, "attack duration")
	flag.Parse()

	body, err := encodePut(*table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nosqlbench: encode: %v\n", err)
		os.Exit(1)
	}

	header := map[string][]string{
		"Content-Type": {"application/octet-stream"},
		"User-Agent":   {"nosqlbench/1.0.0"},
	}
	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: "POST",
		URL:    *endpoint,
		Body:   body,
		Header: header,
	})

	rl := ratelimit.NewSimpleRateLimiter(float64(*rps), 1)
	attacker := vegeta.NewAttacker()
	rate := vegeta.Rate{Freq: *rps, Per: time.Second}

	var metrics vegeta.Metrics
	var totalRLDelay time.Duration
	ctx := context.Background()
	for res := range attacker.Attack(targeter, rate, *duration, "nosqlbench") {
		metrics.Add(res)
		if d, err := rl.ConsumeUnits(ctx, 1, time.Second, true); err == nil {
			totalRLDelay += d
		}
	}
	metrics.Close()

	reporter := vegeta.NewTextReporter(&metrics)
	if err := reporter.Report(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "nosqlbench: report: %v\n", err)
	}
	fmt.Printf("simple-rate-limiter cumulative delay at %d rps: %s\n", *rps, totalRLDelay)
}

// encodePut builds one V4-encoded PutRequest body the way Client.attempt
// does, without going through a Client: just enough of the wire layer to
// give vegeta a realistic payload to replay at load.
func encodePut(table string) ([]byte, error) {
	row := fieldvalue.NewMap()
	row.Set("id", fieldvalue.Int(1))
	row.Set("payload", fieldvalue.String("nosqlbench-load"))

	req := &ops.PutRequest{Table: table, Value: row, Kind: ops.PutUnconditional}

	pool := buffer.NewPool()
	buf := pool.Acquire()
	defer pool.Release(buf)

	pm := protocol.NewManager()
	if _, err := pm.Serialize(buf, wirebinary.OpPut, req); err != nil {
		return nil, err
	}
	b, err := buf.Slice(0, buf.Len())
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
