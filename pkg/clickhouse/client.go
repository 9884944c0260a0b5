// Package clickhouse provides the thin ClickHouse access layer: a client for
// executing rendered queries and a batch writer for inserting processed event
// rows. Neither component builds or inspects SQL beyond identifier escaping;
// query construction lives in pkg/query.
package clickhouse

import (
	"context"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
)

type (
	// Client wraps a ClickHouse native-protocol connection.
	Client struct {
		conn driver.Conn
	}

	// Options configures a client connection.
	Options struct {
		// Addr is the host:port of the ClickHouse native interface.
		Addr string

		// Database, Username and Password authenticate the connection.
		// Empty values fall back to the server defaults.
		Database string
		Username string
		Password string
	}
)

// NewClient opens and pings a ClickHouse connection.
//
// Example:
//
//	client, err := clickhouse.NewClient(ctx, clickhouse.Options{Addr: "localhost:9000"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open clickhouse connection")
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to ping clickhouse at %s", opts.Addr)
	}

	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string) error {
	return c.conn.Exec(ctx, sql)
}

// Select runs a query and returns every row as a column-name-keyed map. The
// scan destinations are derived from the server-reported column types, so the
// caller needs no knowledge of the result schema.
func (c *Client) Select(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, "query failed")
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(types))
		for i, ct := range types {
			values[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(values...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = reflect.ValueOf(values[i]).Elem().Interface()
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}
	return results, nil
}
