package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ExecScript runs a semicolon-separated SQL script in one transaction.
// It is meant for schema setup and test fixtures, not for user input.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	statements := SplitStatements(script)
	if len(statements) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	for i, stmt := range statements {
		s.logger.Debug("Executing SQL script statement", zap.Int("index", i), zap.String("sql", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			s.logger.Error("Failed to execute script statement", zap.Error(err), zap.String("sql", stmt))
			return fmt.Errorf("exec script statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("exec script: commit: %w", err)
	}
	return nil
}

// ExecFile reads a SQL file and runs it with ExecScript.
func (s *Store) ExecFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}
	if err := s.ExecScript(ctx, string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// SplitStatements splits script on semicolons outside quoted strings and
// drops "--" line comments and empty statements.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
