package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

func TestTranslateFilter_Equality(t *testing.T) {
	cond, err := translateFilter("Brewery", "t1", queryir.FilterCriterion{
		Field:    "name",
		Column:   "name",
		Operator: queryir.OpEq,
		Value:    ir.IRString("Heineken"),
	})
	require.NoError(t, err)
	assert.Equal(t, Equal{
		Left:  ColumnRef{Table: "t1", Column: "name"},
		Right: Param{Value: ir.IRString("Heineken")},
	}, cond)
}

func TestTranslateFilter_NullBecomesIsNull(t *testing.T) {
	cond, err := translateFilter("Brewery", "t1", queryir.FilterCriterion{
		Field: "city", Column: "city", Operator: queryir.OpEq, Value: ir.IRNull{},
	})
	require.NoError(t, err)
	assert.Equal(t, IsNull{Expr: ColumnRef{Table: "t1", Column: "city"}}, cond)
}

func TestTranslateFilter_UnsupportedOperator(t *testing.T) {
	for _, op := range []queryir.Operator{"lt", "like", "in", ""} {
		t.Run(string(op), func(t *testing.T) {
			_, err := translateFilter("Brewery", "t1", queryir.FilterCriterion{
				Field: "name", Column: "name", Operator: op, Value: ir.IRString("x"),
			})
			require.Error(t, err)
			assert.True(t, IsUnsupportedOperation(err))
		})
	}
}

func TestTranslateFilter_ConfigurationErrors(t *testing.T) {
	_, err := translateFilter("Brewery", "t1", queryir.FilterCriterion{Field: "name", Operator: queryir.OpEq, Value: ir.IRString("x")})
	assert.True(t, IsConfigurationError(err))

	_, err = translateFilter("Brewery", "t1", queryir.FilterCriterion{
		Field: "tags", Column: "tags", Operator: queryir.OpEq, Value: ir.IRArray{ir.IRString("a")},
	})
	assert.True(t, IsConfigurationError(err))
}

func TestTranslateFilters_StopsAtFirstError(t *testing.T) {
	conds, err := translateFilters("Brewery", "t1", []queryir.FilterCriterion{
		{Field: "name", Column: "name", Operator: queryir.OpEq, Value: ir.IRString("a")},
		{Field: "name", Column: "name", Operator: "gt", Value: ir.IRString("b")},
	})
	assert.Nil(t, conds)
	assert.True(t, IsUnsupportedOperation(err))

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "gt", ce.Details["name"])
	assert.Equal(t, "Brewery", ce.Path)
}
