package nosqldb

import (
	"context"
	"time"

	"progressdb/nosqldb/pkg/fieldvalue"
	"progressdb/nosqldb/pkg/ops"
	"progressdb/nosqldb/pkg/prepared"
	"progressdb/nosqldb/pkg/wirebinary"
)

// Get fetches a single row by primary key.
func (c *Client) Get(ctx context.Context, table string, key *fieldvalue.MapValue, opts ops.Options) (*ops.GetResult, error) {
	res, err := c.Do(ctx, &ops.GetRequest{Table: table, Key: key, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.GetResult), nil
}

// Put writes a row unconditionally.
func (c *Client) Put(ctx context.Context, table string, value *fieldvalue.MapValue, opts ops.Options) (*ops.PutResult, error) {
	return c.putKind(ctx, table, value, ops.PutUnconditional, nil, opts)
}

// PutIfAbsent writes a row only if the key doesn't already exist.
func (c *Client) PutIfAbsent(ctx context.Context, table string, value *fieldvalue.MapValue, opts ops.Options) (*ops.PutResult, error) {
	return c.putKind(ctx, table, value, ops.PutIfAbsent, nil, opts)
}

// PutIfPresent writes a row only if the key already exists.
func (c *Client) PutIfPresent(ctx context.Context, table string, value *fieldvalue.MapValue, opts ops.Options) (*ops.PutResult, error) {
	return c.putKind(ctx, table, value, ops.PutIfPresent, nil, opts)
}

// PutIfVersion writes a row only if its current version matches matchVersion.
func (c *Client) PutIfVersion(ctx context.Context, table string, value *fieldvalue.MapValue, matchVersion fieldvalue.Version, opts ops.Options) (*ops.PutResult, error) {
	return c.putKind(ctx, table, value, ops.PutIfVersion, matchVersion, opts)
}

func (c *Client) putKind(ctx context.Context, table string, value *fieldvalue.MapValue, kind ops.PutKind, matchVersion fieldvalue.Version, opts ops.Options) (*ops.PutResult, error) {
	res, err := c.Do(ctx, &ops.PutRequest{Table: table, Value: value, Kind: kind, MatchVersion: matchVersion, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.PutResult), nil
}

// Delete removes a row by primary key.
func (c *Client) Delete(ctx context.Context, table string, key *fieldvalue.MapValue, opts ops.Options) (*ops.DeleteResult, error) {
	res, err := c.Do(ctx, &ops.DeleteRequest{Table: table, Key: key, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.DeleteResult), nil
}

// DeleteIfVersion removes a row only if its current version matches matchVersion.
func (c *Client) DeleteIfVersion(ctx context.Context, table string, key *fieldvalue.MapValue, matchVersion fieldvalue.Version, opts ops.Options) (*ops.DeleteResult, error) {
	res, err := c.Do(ctx, &ops.DeleteRequest{Table: table, Key: key, MatchVersion: matchVersion, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.DeleteResult), nil
}

// Prepare compiles statement server-side for repeated execution.
func (c *Client) Prepare(ctx context.Context, statement string, opts ops.Options) (*prepared.PreparedStatement, error) {
	res, err := c.Do(ctx, &ops.PrepareRequest{Statement: statement, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.PrepareResult).Statement, nil
}

// Query executes one statement (or a previously compiled one), possibly
// across several calls as continuation keys page through results.
// QueryRequest carries either Statement or Prepared, never both.
func (c *Client) Query(ctx context.Context, req *ops.QueryRequest) (*ops.QueryResult, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.(*ops.QueryResult), nil
}

// QueryAll drains every page of a query into one slice, rebinding the
// continuation key between calls (spec §8 property: "paginated query
// drains to completion"). Intended for demos/tests, not production code
// expecting bounded memory.
func (c *Client) QueryAll(ctx context.Context, req *ops.QueryRequest) ([]*fieldvalue.MapValue, error) {
	var all []*fieldvalue.MapValue
	for {
		res, err := c.Query(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Results...)
		if len(res.Continuation) == 0 {
			return all, nil
		}
		req.Continuation = res.Continuation
	}
}

// WriteMultiple batches several Put/Delete sub-operations against one
// table into a single round trip.
func (c *Client) WriteMultiple(ctx context.Context, table string, subOps []ops.SubOp, abortOnFail bool, opts ops.Options) (*ops.WriteMultipleResult, error) {
	res, err := c.Do(ctx, &ops.WriteMultipleRequest{Table: table, Ops: subOps, AbortOnFail: abortOnFail, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.WriteMultipleResult), nil
}

// ExecuteDDL issues a CREATE/ALTER/DROP TABLE or index DDL statement,
// returning the async operation's initial TableResult (spec §4.7's DDL
// poll-to-completion pattern starts from this).
func (c *Client) ExecuteDDL(ctx context.Context, statement string, opts ops.Options) (*ops.TableResult, error) {
	res, err := c.Do(ctx, &ops.TableRequest{Statement: statement, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.TableResult), nil
}

// SetTableLimits updates a table's provisioned throughput directly,
// without a DDL statement.
func (c *Client) SetTableLimits(ctx context.Context, table string, limits ops.TableLimits, opts ops.Options) (*ops.TableResult, error) {
	res, err := c.Do(ctx, &ops.TableRequest{Limits: &limits, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.TableResult), nil
}

// GetTable polls table's current state and provisioned limits.
func (c *Client) GetTable(ctx context.Context, table string, opts ops.Options) (*ops.TableResult, error) {
	res, err := c.Do(ctx, &ops.GetTableRequest{Table: table, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.TableResult), nil
}

// WaitForTableState polls GetTable every pollInterval until table reaches
// want or ctx is cancelled (caller supplies ctx with a deadline; this
// loop has no timeout of its own beyond ctx).
func (c *Client) WaitForTableState(ctx context.Context, table string, want wirebinary.TableState, pollInterval time.Duration) (*ops.TableResult, error) {
	for {
		res, err := c.GetTable(ctx, table, ops.Options{})
		if err != nil {
			return nil, err
		}
		if res.State == want {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// SystemRequest issues a tenant-wide administrative statement.
func (c *Client) SystemRequest(ctx context.Context, statement string, opts ops.Options) (*ops.SystemStatusResult, error) {
	res, err := c.Do(ctx, &ops.SystemRequest{Statement: statement, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.SystemStatusResult), nil
}

// SystemStatus polls a previously issued SystemRequest by operation id.
func (c *Client) SystemStatus(ctx context.Context, operationID string, opts ops.Options) (*ops.SystemStatusResult, error) {
	res, err := c.Do(ctx, &ops.SystemStatusRequest{OperationID: operationID, Options: opts})
	if err != nil {
		return nil, err
	}
	return res.(*ops.SystemStatusResult), nil
}
