package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/querysql"
)

// Execute runs q and returns the assembled results: one value per root
// instance, or one value per key in key order for batch queries.
func (s *Store) Execute(ctx context.Context, q *querysql.CompiledQuery) ([]any, error) {
	a, err := s.stream(ctx, q)
	if err != nil {
		return nil, err
	}
	return a.Results(), nil
}

// ExecuteKeyed runs a batch query and pairs every result with its key.
func (s *Store) ExecuteKeyed(ctx context.Context, q *querysql.CompiledQuery) ([]querysql.KeyedResult, error) {
	if q.Plan.Batch == nil {
		return nil, fmt.Errorf("execute keyed: query %s has no batch keys", q.SessionID)
	}
	a, err := s.stream(ctx, q)
	if err != nil {
		return nil, err
	}
	return a.Keyed(), nil
}

// stream feeds every row of q into a fresh assembler.
func (s *Store) stream(ctx context.Context, q *querysql.CompiledQuery) (*querysql.Assembler, error) {
	if q.Statement.Dialect != s.dialect.Name() {
		return nil, fmt.Errorf("query compiled for %s cannot run on %s", q.Statement.Dialect, s.dialect.Name())
	}

	s.logger.Debug("Executing SQL SELECT",
		zap.String("session", q.SessionID),
		zap.String("fingerprint", q.Fingerprint),
		zap.String("sql", q.Statement.SQL),
		zap.Any("params", q.Statement.Args))

	rows, err := s.db.QueryContext(ctx, q.Statement.SQL, q.Statement.Args...)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", q.Statement.SQL))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()

	a := q.NewAssembler()
	n, err := readRows(rows, a.Add)
	if err != nil {
		s.logger.Error("Failed to assemble rows", zap.Error(err), zap.String("session", q.SessionID))
		return nil, err
	}
	s.logger.Debug("assembled rows", zap.String("session", q.SessionID), zap.Int("rows", n))
	return a, nil
}

// readRows scans rows into alias-keyed maps and hands each one to add.
// []byte values are converted to strings so identity keys and JSON output
// do not depend on how the driver returns text.
func readRows(rows *sql.Rows, add func(querysql.Row) error) (int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to get columns: %w", err)
	}

	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return n, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(querysql.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		if err := add(row); err != nil {
			return n, err
		}
		n++
	}

	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("error after scanning rows: %w", err)
	}
	return n, nil
}
