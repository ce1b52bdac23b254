package loader

import (
	"context"
	"fmt"

	"github.com/roach88/nestql/internal/queryir"
	"github.com/roach88/nestql/internal/querysql"
	"github.com/roach88/nestql/internal/store"
)

// QueryFetcher returns a Fetcher that runs template as a batch request:
// each call compiles a copy of template with the batch keys set and
// executes it against s.
//
// template must not carry keys or paging of its own; its KeyCardinality
// decides whether each key yields one object or a list.
func QueryFetcher(c *querysql.Compiler, s *store.Store, template *queryir.ObjectQueryRequest) Fetcher {
	return func(ctx context.Context, keys []queryir.KeyCriterion) ([]any, error) {
		if len(keys) == 0 {
			return []any{}, nil
		}
		req := *template
		req.Keys = keys
		q, err := c.Compile(&req)
		if err != nil {
			return nil, fmt.Errorf("compile batch for %s: %w", template.Type.Name, err)
		}
		return s.Execute(ctx, q)
	}
}
