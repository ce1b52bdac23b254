package querysql

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

func TestCompile_BreweryGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, d := range []Dialect{Postgres, MySQL, SQLite} {
		t.Run(d.Name(), func(t *testing.T) {
			q := mustCompile(t, d, breweryRequest())
			g.Assert(t, "brewery_"+d.Name(), []byte(q.Statement.SQL+"\n"))
			assert.Empty(t, q.Statement.Args)
		})
	}
}

func TestCompile_Filter(t *testing.T) {
	req := breweryRequest()
	req.Filters = []queryir.FilterCriterion{{
		Field: "name", Column: "name", Operator: queryir.OpEq, Value: ir.IRString("Heineken"),
	}}

	q := mustCompile(t, Postgres, req)
	assert.Equal(t, `SELECT "t1"."name" AS "c1", "t3"."c2" AS "c2", "t3"."c3" AS "c3", "t1"."id" AS "c4" `+
		`FROM "brewery" AS "t1" LEFT JOIN LATERAL (SELECT "t2"."name" AS "c2", "t2"."id" AS "c3" FROM "beer" AS "t2" `+
		`WHERE "t2"."brewery_id" = "t1"."id") AS "t3" ON TRUE WHERE "t1"."name" = $1 ORDER BY "c4", "c3"`, q.Statement.SQL)
	assert.Equal(t, []any{"Heineken"}, q.Statement.Args)
	assert.NotContains(t, q.Statement.SQL, "Heineken")
}

func TestCompile_NestedFilterStaysInside(t *testing.T) {
	req := breweryRequest()
	req.Related[0].Request.Filters = []queryir.FilterCriterion{{
		Field: "style", Column: "style", Operator: queryir.OpEq, Value: ir.IRString("lager"),
	}}

	q := mustCompile(t, Postgres, req)
	assert.Contains(t, q.Statement.SQL, `WHERE "t2"."brewery_id" = "t1"."id" AND "t2"."style" = $1) AS "t3" ON TRUE ORDER BY`)
	assert.Equal(t, []any{"lager"}, q.Statement.Args)
}

func TestCompile_JoinTable(t *testing.T) {
	q := mustCompile(t, Postgres, postTagsRequest())
	assert.Equal(t, `SELECT "t1"."title" AS "c1", "t4"."c2" AS "c2", "t4"."c3" AS "c3", "t1"."id" AS "c4" `+
		`FROM "post" AS "t1" LEFT JOIN LATERAL (SELECT "t2"."label" AS "c2", "t2"."id" AS "c3" FROM "tag" AS "t2" `+
		`JOIN "post_tag" AS "t3" ON "t3"."tag_id" = "t2"."id" WHERE "t3"."post_id" = "t1"."id") AS "t4" ON TRUE `+
		`ORDER BY "c4", "c3"`, q.Statement.SQL)
}

func TestCompile_InverseJoinTable(t *testing.T) {
	req := &queryir.ObjectQueryRequest{
		Type: queryir.TypeRef{Name: "Tag", KeyColumns: []string{"id"}},
		Selection: queryir.Selection{
			Scalars: []queryir.ScalarField{{Name: "label", Column: "label"}},
			Related: []queryir.RelatedField{{
				Name:        "posts",
				Cardinality: queryir.Many,
				Join: queryir.JoinTable{
					Table:      "post_tag",
					ParentSide: []queryir.ColumnPair{{Parent: "id", Child: "post_id"}},
					ChildSide:  []queryir.ColumnPair{{Parent: "tag_id", Child: "id"}},
					Inverse:    true,
				},
				Request: &queryir.ObjectQueryRequest{
					Type:      queryir.TypeRef{Name: "Post", KeyColumns: []string{"id"}},
					Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "title", Column: "title"}}},
				},
			}},
		},
	}

	q := mustCompile(t, Postgres, req)
	assert.Contains(t, q.Statement.SQL, `FROM "post" AS "t2" JOIN "post_tag" AS "t3" ON "t3"."post_id" = "t2"."id" WHERE "t3"."tag_id" = "t1"."id"`)
}

func TestCompile_Batch(t *testing.T) {
	req := &queryir.ObjectQueryRequest{
		Type:      queryir.TypeRef{Name: "Brewery", KeyColumns: []string{"id"}},
		Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
		Keys:      idKeys(1, 2, 3),
	}

	t.Run("postgres", func(t *testing.T) {
		q := mustCompile(t, Postgres, req)
		assert.Equal(t, `SELECT "t1"."c1" AS "c1", "t1"."c2" AS "c2", "t3"."c3" AS "c3", "t3"."c4" AS "c4" `+
			`FROM (VALUES (0, CAST($1 AS BIGINT)), (1, CAST($2 AS BIGINT)), (2, CAST($3 AS BIGINT))) AS "t1" ("c1", "c2") `+
			`LEFT JOIN LATERAL (SELECT "t2"."name" AS "c3", "t2"."id" AS "c4" FROM "brewery" AS "t2" WHERE "t2"."id" = "t1"."c2") AS "t3" ON TRUE `+
			`ORDER BY "c1", "c4"`, q.Statement.SQL)
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, q.Statement.Args)
		require.NotNil(t, q.Plan.Batch)
		assert.Equal(t, "c1", q.Plan.Batch.OrdinalAlias)
		assert.IsType(t, Single{}, q.Plan.Root)
	})

	t.Run("sqlite", func(t *testing.T) {
		q := mustCompile(t, SQLite, req)
		assert.Equal(t, `SELECT "t1"."c1" AS "c1", "t1"."c2" AS "c2", "t3"."c3" AS "c3", "t3"."c4" AS "c4" `+
			`FROM (SELECT 0 AS "c1", ? AS "c2" UNION ALL SELECT 1, ? UNION ALL SELECT 2, ?) AS "t1" `+
			`LEFT JOIN (SELECT "t2"."name" AS "c3", "t2"."id" AS "c4", "t2"."id" AS "c5" FROM "brewery" AS "t2") AS "t3" ON "t3"."c5" = "t1"."c2" `+
			`ORDER BY "c1", "c4"`, q.Statement.SQL)
	})

	t.Run("many", func(t *testing.T) {
		many := *req
		many.KeyCardinality = queryir.Many
		q := mustCompile(t, Postgres, &many)
		assert.IsType(t, Collection{}, q.Plan.Root)
	})
}

func TestCompile_BatchRejectsNullKey(t *testing.T) {
	req := &queryir.ObjectQueryRequest{
		Type:      queryir.TypeRef{Name: "Brewery", KeyColumns: []string{"id"}},
		Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
		Keys:      []queryir.KeyCriterion{{{Column: "id", Value: ir.IRNull{}}}},
	}
	_, err := newTestCompiler(Postgres).Compile(req)
	assert.True(t, IsConfigurationError(err))
}

func TestCompile_Paging(t *testing.T) {
	req := breweryRequest()
	req.Paging = &queryir.PagingCriterion{Page: 1, PageSize: 10}

	q := mustCompile(t, Postgres, req)
	assert.Equal(t, `SELECT "t1"."name" AS "c1", "t3"."c2" AS "c2", "t3"."c3" AS "c3", "t1"."id" AS "c4" `+
		`FROM (SELECT "t4".* FROM "brewery" AS "t4" ORDER BY "t4"."id" LIMIT 10 OFFSET 10) AS "t1" `+
		`LEFT JOIN LATERAL (SELECT "t2"."name" AS "c2", "t2"."id" AS "c3" FROM "beer" AS "t2" WHERE "t2"."brewery_id" = "t1"."id") AS "t3" ON TRUE `+
		`ORDER BY "c4", "c3"`, q.Statement.SQL)
}

func TestCompile_PagingMovesRootFiltersInside(t *testing.T) {
	req := breweryRequest()
	req.Paging = &queryir.PagingCriterion{Page: 0, PageSize: 5}
	req.Filters = []queryir.FilterCriterion{{Field: "city", Column: "city", Operator: queryir.OpEq, Value: ir.IRString("Leuven")}}
	req.Sort = []queryir.SortCriterion{{Field: "name", Column: "name", Descending: true}}

	q := mustCompile(t, Postgres, req)
	assert.Contains(t, q.Statement.SQL, `FROM (SELECT "t4".* FROM "brewery" AS "t4" WHERE "t4"."city" = $1 ORDER BY "t4"."name" DESC, "t4"."id" LIMIT 5) AS "t1"`)
	assert.Contains(t, q.Statement.SQL, `ORDER BY "c1" DESC, "c4", "c3"`)
	assert.Equal(t, []any{"Leuven"}, q.Statement.Args)
}

func TestCompile_PagingOverflowRejected(t *testing.T) {
	req := breweryRequest()
	req.Paging = &queryir.PagingCriterion{Page: math.MaxInt/2 + 1, PageSize: 2}

	_, err := newTestCompiler(Postgres).Compile(req)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "beyond the largest offset")
}

func TestCompile_NestedPagingRejected(t *testing.T) {
	req := breweryRequest()
	req.Related[0].Request.Paging = &queryir.PagingCriterion{PageSize: 1}

	_, err := newTestCompiler(Postgres).Compile(req)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, queryir.CodeNestedPaging, ce.Details["code"])
}

func TestCompile_Aggregates(t *testing.T) {
	req := breweryRequest()
	req.Related = []queryir.RelatedField{{
		Name:        "stats",
		Cardinality: queryir.One,
		Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "id", Child: "brewery_id"}}},
		Request: &queryir.ObjectQueryRequest{
			Type: queryir.TypeRef{Name: "Beer", KeyColumns: []string{"id"}},
			Selection: queryir.Selection{Aggregates: []queryir.AggregateField{
				{Name: "count", Function: queryir.AggCount},
				{Name: "strongest", Function: queryir.AggMax, Column: "abv"},
			}},
		},
	}}

	q := mustCompile(t, Postgres, req)
	assert.Equal(t, `SELECT "t1"."name" AS "c1", `+
		`(SELECT COUNT(*) FROM "beer" AS "t2" WHERE "t2"."brewery_id" = "t1"."id") AS "c2", `+
		`(SELECT MAX("t3"."abv") FROM "beer" AS "t3" WHERE "t3"."brewery_id" = "t1"."id") AS "c3", `+
		`"t1"."id" AS "c4" FROM "brewery" AS "t1" ORDER BY "c4"`, q.Statement.SQL)
}

func TestCompile_AggregateErrors(t *testing.T) {
	build := func(agg queryir.AggregateField) *queryir.ObjectQueryRequest {
		req := breweryRequest()
		req.Related = []queryir.RelatedField{{
			Name:        "stats",
			Cardinality: queryir.One,
			Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "id", Child: "brewery_id"}}},
			Request: &queryir.ObjectQueryRequest{
				Type:      queryir.TypeRef{Name: "Beer"},
				Selection: queryir.Selection{Aggregates: []queryir.AggregateField{agg}},
			},
		}}
		return req
	}

	_, err := newTestCompiler(Postgres).Compile(build(queryir.AggregateField{Name: "x", Function: "median", Column: "abv"}))
	assert.True(t, IsUnsupportedOperation(err))

	_, err = newTestCompiler(Postgres).Compile(build(queryir.AggregateField{Name: "x", Function: queryir.AggStringJoin, Column: "name", Distinct: true}))
	assert.True(t, IsConfigurationError(err))

	_, err = newTestCompiler(Postgres).Compile(build(queryir.AggregateField{Name: "x", Function: queryir.AggCount, Distinct: true}))
	assert.True(t, IsConfigurationError(err))
}

func TestCompile_UnknownType(t *testing.T) {
	req := breweryRequest()
	req.Related[0].Request.Type.Name = "Hop"

	_, err := newTestCompiler(Postgres).Compile(req)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Brewery.beers", ce.Path)
}

func TestCompile_UnsupportedFilterOperator(t *testing.T) {
	req := breweryRequest()
	req.Filters = []queryir.FilterCriterion{{Field: "name", Column: "name", Operator: "contains", Value: ir.IRString("x")}}

	_, err := newTestCompiler(Postgres).Compile(req)
	assert.True(t, IsUnsupportedOperation(err))
}

func TestCompile_KeylessCollectionNumbersRows(t *testing.T) {
	req := breweryRequest()
	req.Related[0].Request = &queryir.ObjectQueryRequest{
		Type: queryir.TypeRef{Name: "Beer"},
		Selection: queryir.Selection{Related: []queryir.RelatedField{{
			Name:        "brewery",
			Cardinality: queryir.One,
			Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "brewery_id", Child: "id"}}},
			Request: &queryir.ObjectQueryRequest{
				Type:      queryir.TypeRef{Name: "Brewery", KeyColumns: []string{"id"}},
				Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
			},
		}}},
	}

	q := mustCompile(t, Postgres, req)
	assert.Contains(t, q.Statement.SQL, `ROW_NUMBER() OVER () AS`)

	root := q.Plan.Root.(Collection).Element
	beers := root.Members[1].Node.(Collection)
	require.Len(t, beers.Element.Identity, 1)
	assert.Equal(t, beers.Element.Identity[0], beers.Element.Marker)
}

func TestCompile_KeylessRelationUsesRowNumber(t *testing.T) {
	req := breweryRequest()
	req.Related[0].Cardinality = queryir.One
	req.Related[0].Request.Type.KeyColumns = nil

	q := mustCompile(t, Postgres, req)
	assert.Contains(t, q.Statement.SQL, `SELECT "t2"."name" AS "c2", "t2"."c3" AS "c4" FROM `+
		`(SELECT "t3".*, ROW_NUMBER() OVER (ORDER BY "t3"."name") AS "c3" FROM "beer" AS "t3") AS "t2"`)

	root := q.Plan.Root.(Collection).Element
	single := root.Members[1].Node.(Single)
	assert.Equal(t, "c4", single.Element.Marker)
	assert.Equal(t, []string{"c4"}, single.Element.Identity)
}

func TestCompile_KeylessRootIsOrderedByRowNumber(t *testing.T) {
	req := &queryir.ObjectQueryRequest{
		Type:      queryir.TypeRef{Name: "Beer"},
		Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
	}

	q := mustCompile(t, SQLite, req)
	assert.Equal(t, `SELECT "t1"."name" AS "c1", "t1"."c2" AS "c3" FROM `+
		`(SELECT "t2".*, ROW_NUMBER() OVER (ORDER BY "t2"."name") AS "c2" FROM "beer" AS "t2") AS "t1" `+
		`ORDER BY "c3"`, q.Statement.SQL)
}

func TestCompile_KeylessPagingRejected(t *testing.T) {
	req := &queryir.ObjectQueryRequest{
		Type:      queryir.TypeRef{Name: "Beer"},
		Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
		Paging:    &queryir.PagingCriterion{Page: 0, PageSize: 2},
	}

	_, err := newTestCompiler(Postgres).Compile(req)
	assert.True(t, IsConfigurationError(err))
}

func TestCompile_Embedded(t *testing.T) {
	req := breweryRequest()
	req.Related = nil
	req.Embedded = []queryir.EmbeddedField{{
		Name: "address",
		Selection: queryir.Selection{Scalars: []queryir.ScalarField{
			{Name: "street", Column: "street", IsKey: true},
			{Name: "city", Column: "city"},
		}},
	}}

	q := mustCompile(t, Postgres, req)
	assert.Equal(t, `SELECT "t1"."name" AS "c1", "t1"."street" AS "c2", "t1"."city" AS "c3", "t1"."id" AS "c4" FROM "brewery" AS "t1" ORDER BY "c4"`, q.Statement.SQL)

	root := q.Plan.Root.(Collection).Element
	require.Len(t, root.Members, 2)
	address := root.Members[1].Node.(*Object)
	assert.Equal(t, "c2", address.Marker)
}

// collectAliases walks a statement tree and records every table alias and
// the projection aliases of each select.
func collectAliases(sel *Select, tables map[string]int, check func(aliases []string)) {
	var proj []string
	for _, c := range sel.Columns {
		if c.Alias != "" {
			proj = append(proj, c.Alias)
		}
		if sq, ok := c.Expr.(Subquery); ok {
			collectAliases(sq.Select, tables, check)
		}
	}
	check(proj)

	visit := func(src Source) {
		tables[src.alias()]++
		if sq, ok := src.(SubquerySource); ok {
			collectAliases(sq.Select, tables, check)
		}
	}
	visit(sel.From)
	for _, j := range sel.Joins {
		visit(j.Source)
	}
}

func TestCompile_AliasesUniqueAtDepth(t *testing.T) {
	// Brewery -> beers -> brewery -> beers ..., four levels deep, plus a
	// join-table relation and an aggregate at every level.
	var level func(depth int) *queryir.ObjectQueryRequest
	level = func(depth int) *queryir.ObjectQueryRequest {
		req := breweryRequest()
		req.Embedded = []queryir.EmbeddedField{{
			Name:      "address",
			Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "city", Column: "city"}}},
		}}
		req.Related = append(req.Related, queryir.RelatedField{
			Name:        "stats",
			Cardinality: queryir.One,
			Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "id", Child: "brewery_id"}}},
			Request: &queryir.ObjectQueryRequest{
				Type:      queryir.TypeRef{Name: "Beer"},
				Selection: queryir.Selection{Aggregates: []queryir.AggregateField{{Name: "n", Function: queryir.AggCount}}},
			},
		})
		if depth > 0 {
			req.Related[0].Request.Related = []queryir.RelatedField{{
				Name:        "brewery",
				Cardinality: queryir.One,
				Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "brewery_id", Child: "id"}}},
				Request:     level(depth - 1),
			}}
		}
		return req
	}

	for _, d := range []Dialect{Postgres, SQLite} {
		t.Run(d.Name(), func(t *testing.T) {
			q := mustCompile(t, d, level(4))

			tables := make(map[string]int)
			collectAliases(q.Tree, tables, func(aliases []string) {
				seen := make(map[string]bool)
				for _, a := range aliases {
					assert.False(t, seen[a], "alias %s projected twice in one select", a)
					seen[a] = true
				}
			})
			for alias, n := range tables {
				assert.Equal(t, 1, n, "table alias %s used %d times", alias, n)
			}
		})
	}
}

func TestCompile_Deterministic(t *testing.T) {
	a := mustCompile(t, Postgres, breweryRequest())
	b := mustCompile(t, Postgres, breweryRequest())
	assert.Equal(t, a.Statement, b.Statement)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.Fingerprint, 64)

	c := mustCompile(t, SQLite, breweryRequest())
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestCompile_ConcurrentSessions(t *testing.T) {
	compiler := NewCompiler(Postgres, testTables)
	want := mustCompile(t, Postgres, breweryRequest()).Statement.SQL

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := compiler.Compile(breweryRequest())
			if err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = q.Statement.SQL
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, want, got, fmt.Sprintf("goroutine %d", i))
	}
}

func TestCompile_LogsSession(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	compiler := NewCompiler(Postgres, testTables,
		WithLogger(zap.New(core)),
		WithSessionIDGenerator(NewSequenceGenerator("session-1")))

	q, err := compiler.Compile(breweryRequest())
	require.NoError(t, err)
	assert.Equal(t, "session-1", q.SessionID)

	entries := logs.FilterMessage("compiled object query").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "session-1", fields["session"])
	assert.Equal(t, "Brewery", fields["type"])
	assert.Equal(t, int64(4), fields["columns"])
	assert.Equal(t, int64(3), fields["tables"])
}
