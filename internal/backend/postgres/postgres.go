// Package postgres adapts a PostgreSQL connection into the
// internal/backend.Backend contract, using pgx's database/sql driver so
// the same DecodeRows helper serves every dialect.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/sqlgen"
	pgsql "github.com/tesseract-olap/tesseract/internal/sqlgen/postgres"
	"github.com/tesseract-olap/tesseract/internal/util"
)

var tracer = otel.Tracer("tesseract/backend/postgres")

func init() {
	backend.Register(pgsql.Kind, func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("postgres: unexpected config type %T", cfg)
		}
		return Connect(ctx, c)
	})
}

type Config struct {
	Name     string `yaml:"name" validate:"required"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	Database string `yaml:"database" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

func (Config) Kind() string { return pgsql.Kind }

type Backend struct {
	cfg  Config
	pool *sql.DB
}

func (b *Backend) Kind() string { return pgsql.Kind }

func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	ctx, span := tracer.Start(ctx, "postgres.Connect")
	defer span.End()

	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslmode)

	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("opening postgres pool", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("pinging postgres", err)
	}

	return &Backend{cfg: cfg, pool: pool}, nil
}

func (b *Backend) GenerateSQL(ir *queryir.QueryIR) (string, error) {
	gen, err := sqlgen.Get(pgsql.Kind)
	if err != nil {
		return "", err
	}
	return gen.Generate(ir)
}

func (b *Backend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	ctx, span := tracer.Start(ctx, "postgres.ExecSQL")
	defer span.End()

	rows, err := b.pool.QueryContext(ctx, sqlStr)
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("executing postgres query", err)
	}
	return backend.DecodeRows(rows)
}

const streamPageSize = 10000

func (b *Backend) ExecSQLStream(ctx context.Context, sqlStr string) (<-chan *dataframe.DataFrame, <-chan error) {
	out := make(chan *dataframe.DataFrame)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		rows, err := b.pool.QueryContext(ctx, sqlStr)
		if err != nil {
			errc <- util.NewUpstreamError("executing postgres stream query", err)
			return
		}
		defer rows.Close()

		cols, err := rows.ColumnTypes()
		if err != nil {
			errc <- util.NewUpstreamError("reading postgres stream columns", err)
			return
		}

		for {
			page := backend.NewPageFrame(cols)
			n := 0
			for n < streamPageSize && rows.Next() {
				if err := backend.ScanInto(rows, page, cols); err != nil {
					errc <- util.NewUpstreamError("scanning postgres stream row", err)
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
			errc <- util.NewUpstreamError("iterating postgres stream rows", err)
		}
	}()

	return out, errc
}

func (b *Backend) CheckUser(ctx context.Context, user, pass string) (bool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", user, pass, b.cfg.Host, b.cfg.Port, b.cfg.Database)
	pool, err := sql.Open("pgx", dsn)
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
