package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"rental-finder/utils"
)

const (
	kindEmpty  = "empty"
	kindString = "string"
	kindNumber = "number"
)

// PostgresGrid keeps a sheet as one row per cell in the grid_cells table,
// keyed by a grid name so several sheets can share a database.
type PostgresGrid struct {
	db  *sqlx.DB
	key string
}

// NewPostgresGrid opens a connection to PostgreSQL, retrying the initial
// ping, runs the schema migration and returns a grid bound to key.
func NewPostgresGrid(ctx context.Context, dsn, key string, retry *utils.RetryConfig) (*PostgresGrid, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "open", Err: eris.Wrap(err, "postgres: open")}
	}

	err = retry.Do(ctx, "postgres-ping", func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, &StoreUnavailableError{Op: "connect", Err: err}
	}

	g := &PostgresGrid{db: db, key: key}
	if err := g.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, &StoreUnavailableError{Op: "migrate", Err: eris.Wrap(err, "postgres: migrate")}
	}
	return g, nil
}

func (g *PostgresGrid) migrate(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grid_cells (
			grid_key   TEXT        NOT NULL,
			row_idx    INTEGER     NOT NULL,
			col_idx    INTEGER     NOT NULL,
			value      TEXT        NOT NULL DEFAULT '',
			value_kind TEXT        NOT NULL DEFAULT 'empty',
			formula    TEXT        NOT NULL DEFAULT '',
			format     JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (grid_key, row_idx, col_idx)
		);

		CREATE INDEX IF NOT EXISTS idx_grid_cells_row ON grid_cells(grid_key, row_idx);
	`)
	return err
}

type cellRow struct {
	Row     int            `db:"row_idx"`
	Col     int            `db:"col_idx"`
	Value   string         `db:"value"`
	Kind    string         `db:"value_kind"`
	Formula string         `db:"formula"`
	Format  sql.NullString `db:"format"`
}

func (g *PostgresGrid) PopulatedRows(ctx context.Context) (int, error) {
	var last int
	err := g.db.GetContext(ctx, &last, `
		SELECT COALESCE(MAX(row_idx), 0)
		FROM grid_cells
		WHERE grid_key = $1 AND (value <> '' OR formula <> '')
	`, g.key)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: populated rows")
	}
	return last, nil
}

func (g *PostgresGrid) LoadCells(ctx context.Context, r Range) (*CellBlock, error) {
	var rows []cellRow
	err := g.db.SelectContext(ctx, &rows, `
		SELECT row_idx, col_idx, value, value_kind, formula, format::text AS format
		FROM grid_cells
		WHERE grid_key = $1
		  AND row_idx >= $2 AND row_idx < $3
		  AND col_idx >= $4 AND col_idx < $5
	`, g.key, r.StartRow, r.EndRow, r.StartCol, r.EndCol)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", r.A1())
	}

	block := NewCellBlock(r)
	for _, cr := range rows {
		c := &Cell{Row: cr.Row, Col: cr.Col, Formula: cr.Formula, Value: decodeValue(cr.Value, cr.Kind)}
		if cr.Format.Valid {
			var f CellFormat
			if err := json.Unmarshal([]byte(cr.Format.String), &f); err == nil {
				c.Format = &f
			}
		}
		block.put(c)
	}
	return block, nil
}

func (g *PostgresGrid) SaveCells(ctx context.Context, cells []*Cell) error {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range cells {
		value, kind := encodeValue(c.Value)
		var format *string
		if c.Format != nil {
			b, err := json.Marshal(c.Format)
			if err != nil {
				return eris.Wrap(err, "postgres: encode format")
			}
			s := string(b)
			format = &s
		}

		// a NULL format keeps whatever format the cell already had
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grid_cells (grid_key, row_idx, col_idx, value, value_kind, formula, format, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
			ON CONFLICT (grid_key, row_idx, col_idx) DO UPDATE SET
				value      = EXCLUDED.value,
				value_kind = EXCLUDED.value_kind,
				formula    = EXCLUDED.formula,
				format     = COALESCE(EXCLUDED.format, grid_cells.format),
				updated_at = EXCLUDED.updated_at
		`, g.key, c.Row, c.Col, value, kind, c.Formula, format, time.Now().UTC())
		if err != nil {
			return eris.Wrapf(err, "postgres: save cell (%d,%d)", c.Row, c.Col)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return nil
}

func (g *PostgresGrid) Close() error {
	return g.db.Close()
}

func encodeValue(v any) (string, string) {
	switch x := v.(type) {
	case nil:
		return "", kindEmpty
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), kindNumber
	case int:
		return strconv.Itoa(x), kindNumber
	case int64:
		return strconv.FormatInt(x, 10), kindNumber
	case string:
		return x, kindString
	default:
		c := Cell{Value: v}
		return c.String(), kindString
	}
}

func decodeValue(s, kind string) any {
	switch kind {
	case kindEmpty:
		return nil
	case kindNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	default:
		return s
	}
}
