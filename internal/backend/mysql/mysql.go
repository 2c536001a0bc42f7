// Package mysql adapts a MySQL/MariaDB connection into the
// internal/backend.Backend contract, using go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/sqlgen"
	mysql_ "github.com/tesseract-olap/tesseract/internal/sqlgen/mysql"
	"github.com/tesseract-olap/tesseract/internal/util"
)

var tracer = otel.Tracer("tesseract/backend/mysql")

func init() {
	backend.Register(mysql_.Kind, func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("mysql: unexpected config type %T", cfg)
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
}

func (Config) Kind() string { return mysql_.Kind }

type Backend struct {
	cfg  Config
	pool *sql.DB
}

func (b *Backend) Kind() string { return mysql_.Kind }

func (cfg Config) dsn() string {
	c := mysqldriver.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c.DBName = cfg.Database
	c.ParseTime = true
	return c.FormatDSN()
}

func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	ctx, span := tracer.Start(ctx, "mysql.Connect")
	defer span.End()

	pool, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("opening mysql pool", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("pinging mysql", err)
	}

	return &Backend{cfg: cfg, pool: pool}, nil
}

func (b *Backend) GenerateSQL(ir *queryir.QueryIR) (string, error) {
	gen, err := sqlgen.Get(mysql_.Kind)
	if err != nil {
		return "", err
	}
	return gen.Generate(ir)
}

func (b *Backend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	ctx, span := tracer.Start(ctx, "mysql.ExecSQL")
	defer span.End()

	rows, err := b.pool.QueryContext(ctx, sqlStr)
	if err != nil {
		span.RecordError(err)
		return nil, util.NewUpstreamError("executing mysql query", err)
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
			errc <- util.NewUpstreamError("executing mysql stream query", err)
			return
		}
		defer rows.Close()

		cols, err := rows.ColumnTypes()
		if err != nil {
			errc <- util.NewUpstreamError("reading mysql stream columns", err)
			return
		}

		for {
			page := backend.NewPageFrame(cols)
			n := 0
			for n < streamPageSize && rows.Next() {
				if err := backend.ScanInto(rows, page, cols); err != nil {
					errc <- util.NewUpstreamError("scanning mysql stream row", err)
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
			errc <- util.NewUpstreamError("iterating mysql stream rows", err)
		}
	}()

	return out, errc
}

func (b *Backend) CheckUser(ctx context.Context, user, pass string) (bool, error) {
	c := mysqldriver.NewConfig()
	c.User = user
	c.Passwd = pass
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)
	c.DBName = b.cfg.Database

	pool, err := sql.Open("mysql", c.FormatDSN())
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
