// Package clickhouse adapts the module's ClickHouse connection into the
// internal/backend.Backend contract: same pool-init and DSN-building
// shape the rest of this module's connection drivers use, wired to
// tesseract's own GenerateSQL/ExecSQL surface instead of a generic tool
// registry.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/sqlgen"
	chsql "github.com/tesseract-olap/tesseract/internal/sqlgen/clickhouse"
	"github.com/tesseract-olap/tesseract/internal/util"
)

var tracer = otel.Tracer("tesseract/backend/clickhouse")

func init() {
	backend.Register(chsql.Kind, func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("clickhouse: unexpected config type %T", cfg)
		}
		return Connect(ctx, c)
	})
}

// Config describes one ClickHouse data source, decoded from one `sources`
// entry of the server config file.
type Config struct {
	Name     string `yaml:"name" validate:"required"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	Database string `yaml:"database" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Secure   bool   `yaml:"secure"`
}

func (Config) Kind() string { return chsql.Kind }

// Backend is the live ClickHouse connection pool plus the config it was
// built from.
type Backend struct {
	cfg  Config
	pool *sql.DB
}

func (b *Backend) Kind() string { return chsql.Kind }

func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	ctx, span := tracer.Start(ctx, "clickhouse.Connect")
	defer span.End()

	secure := "false"
	if cfg.Secure {
		secure = "true"
	}
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s?secure=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, secure)

	pool, err := sql.Open("clickhouse", dsn)
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("opening clickhouse pool", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("pinging clickhouse", err)
	}

	return &Backend{cfg: cfg, pool: pool}, nil
}

func (b *Backend) GenerateSQL(ir *queryir.QueryIR) (string, error) {
	gen, err := sqlgen.Get(chsql.Kind)
	if err != nil {
		return "", err
	}
	return gen.Generate(ir)
}

func (b *Backend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	ctx, span := tracer.Start(ctx, "clickhouse.ExecSQL", trace.WithAttributes())
	defer span.End()

	rows, err := b.pool.QueryContext(ctx, sqlStr)
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("executing clickhouse query", err)
	}
	df, err := backend.DecodeRows(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return df, nil
}

// ExecSQLStream runs sqlStr and streams the result in streamPageSize-row
// chunks. ClickHouse's driver doesn't expose true server-side
// pagination over database/sql, so this buffers one page at a time from
// the same cursor rather than materializing the whole result first.
const streamPageSize = 10000

func (b *Backend) ExecSQLStream(ctx context.Context, sqlStr string) (<-chan *dataframe.DataFrame, <-chan error) {
	out := make(chan *dataframe.DataFrame)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		rows, err := b.pool.QueryContext(ctx, sqlStr)
		if err != nil {
			errc <- util.NewUpstreamError("executing clickhouse stream query", err)
			return
		}
		defer rows.Close()

		cols, err := rows.ColumnTypes()
		if err != nil {
			errc <- util.NewUpstreamError("reading clickhouse stream columns", err)
			return
		}

		for {
			page := backend.NewPageFrame(cols)
			n := 0
			for n < streamPageSize && rows.Next() {
				if err := backend.ScanInto(rows, page, cols); err != nil {
					errc <- util.NewUpstreamError("scanning clickhouse stream row", err)
					return
				}
				n++
			}
			if n > 0 {
				select {
				case out <- page:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if n < streamPageSize {
				break
			}
		}
		if err := rows.Err(); err != nil {
			errc <- util.NewUpstreamError("iterating clickhouse stream rows", err)
		}
	}()

	return out, errc
}

func (b *Backend) CheckUser(ctx context.Context, user, pass string) (bool, error) {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", user, pass, b.cfg.Host, b.cfg.Port, b.cfg.Database)
	pool, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return false, nil
	}
	defer pool.Close()
	if err := pool.PingContext(ctx); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *Backend) Clone() backend.Backend {
	return &Backend{cfg: b.cfg, pool: b.pool}
}

func (b *Backend) Close() error {
	return b.pool.Close()
}
