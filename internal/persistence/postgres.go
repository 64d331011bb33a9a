// Package persistence provides the PostgreSQL article store.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB bundles the connection pool with the repository set.
type PostgresDB struct {
	db        *sql.DB
	articles  ArticleRepository
	summaries SummaryRepository
	events    EventRepository
	taxonomy  TaxonomyRepository
	history   HistoryRepository
	metrics   MetricsRepository
	tokens    TokenRepository
}

// NewPostgresDB opens a connection pool and verifies it with a ping.
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db}
	pgDB.articles = &postgresArticleRepo{db: db}
	pgDB.summaries = &postgresSummaryRepo{db: db}
	pgDB.events = &postgresEventRepo{db: db}
	pgDB.taxonomy = &postgresTaxonomyRepo{db: db}
	pgDB.history = &postgresHistoryRepo{db: db}
	pgDB.metrics = &postgresMetricsRepo{db: db}
	pgDB.tokens = &postgresTokenRepo{db: db}

	return pgDB, nil
}

func (p *PostgresDB) Articles() ArticleRepository  { return p.articles }
func (p *PostgresDB) Summaries() SummaryRepository { return p.summaries }
func (p *PostgresDB) Events() EventRepository      { return p.events }
func (p *PostgresDB) Taxonomy() TaxonomyRepository { return p.taxonomy }
func (p *PostgresDB) History() HistoryRepository   { return p.history }
func (p *PostgresDB) Metrics() MetricsRepository   { return p.metrics }
func (p *PostgresDB) Tokens() TokenRepository      { return p.tokens }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Transaction exposes the repositories bound to one database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Articles() ArticleRepository
	Summaries() SummaryRepository
	Events() EventRepository
	Taxonomy() TaxonomyRepository
}

// BeginTx starts a transaction whose repositories all share it.
func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:        tx,
		articles:  &postgresArticleRepo{db: p.db, tx: tx},
		summaries: &postgresSummaryRepo{db: p.db, tx: tx},
		events:    &postgresEventRepo{db: p.db, tx: tx},
		taxonomy:  &postgresTaxonomyRepo{db: p.db, tx: tx},
	}, nil
}

type postgresTx struct {
	tx        *sql.Tx
	articles  ArticleRepository
	summaries SummaryRepository
	events    EventRepository
	taxonomy  TaxonomyRepository
}

func (t *postgresTx) Commit() error                { return t.tx.Commit() }
func (t *postgresTx) Rollback() error              { return t.tx.Rollback() }
func (t *postgresTx) Articles() ArticleRepository  { return t.articles }
func (t *postgresTx) Summaries() SummaryRepository { return t.summaries }
func (t *postgresTx) Events() EventRepository      { return t.events }
func (t *postgresTx) Taxonomy() TaxonomyRepository { return t.taxonomy }

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
