package querysql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

var testTables = StaticTables{
	"Brewery": "brewery",
	"Beer":    "beer",
	"Post":    "post",
	"Tag":     "tag",
}

func breweryRequest() *queryir.ObjectQueryRequest {
	return &queryir.ObjectQueryRequest{
		Type: queryir.TypeRef{Name: "Brewery", KeyColumns: []string{"id"}},
		Selection: queryir.Selection{
			Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}},
			Related: []queryir.RelatedField{beersField()},
		},
	}
}

func beersField() queryir.RelatedField {
	return queryir.RelatedField{
		Name:        "beers",
		Cardinality: queryir.Many,
		Join:        queryir.ColumnJoin{Pairs: []queryir.ColumnPair{{Parent: "id", Child: "brewery_id"}}},
		Request: &queryir.ObjectQueryRequest{
			Type:      queryir.TypeRef{Name: "Beer", KeyColumns: []string{"id"}},
			Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "name", Column: "name"}}},
		},
	}
}

func postTagsRequest() *queryir.ObjectQueryRequest {
	return &queryir.ObjectQueryRequest{
		Type: queryir.TypeRef{Name: "Post", KeyColumns: []string{"id"}},
		Selection: queryir.Selection{
			Scalars: []queryir.ScalarField{{Name: "title", Column: "title"}},
			Related: []queryir.RelatedField{{
				Name:        "tags",
				Cardinality: queryir.Many,
				Join: queryir.JoinTable{
					Table:      "post_tag",
					ParentSide: []queryir.ColumnPair{{Parent: "id", Child: "post_id"}},
					ChildSide:  []queryir.ColumnPair{{Parent: "tag_id", Child: "id"}},
				},
				Request: &queryir.ObjectQueryRequest{
					Type:      queryir.TypeRef{Name: "Tag", KeyColumns: []string{"id"}},
					Selection: queryir.Selection{Scalars: []queryir.ScalarField{{Name: "label", Column: "label"}}},
				},
			}},
		},
	}
}

func idKeys(ids ...int64) []queryir.KeyCriterion {
	keys := make([]queryir.KeyCriterion, len(ids))
	for i, id := range ids {
		keys[i] = queryir.KeyCriterion{{Column: "id", Value: ir.IRInt(id)}}
	}
	return keys
}

func newTestCompiler(d Dialect) *Compiler {
	return NewCompiler(d, testTables, WithSessionIDGenerator(NewSequenceGenerator("s1", "s2", "s3", "s4")))
}

func mustCompile(t *testing.T, d Dialect, req *queryir.ObjectQueryRequest) *CompiledQuery {
	t.Helper()
	q, err := newTestCompiler(d).Compile(req)
	require.NoError(t, err)
	return q
}
