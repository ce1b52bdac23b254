package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"go nil", nil, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
		{"go map", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}
	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<script>a & b</script>"))
	require.NoError(t, err)
	assert.Equal(t, `"<script>a & b</script>"`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")

	_, err = MarshalCanonical([]any{1, float32(2)})
	require.Error(t, err)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\xc3\xa9"    // U+00E9
	decomposed := "cafe\xcc\x81" // e + U+0301

	result1, err := MarshalCanonical(IRString(composed))
	require.NoError(t, err)
	result2, err := MarshalCanonical(IRString(decomposed))
	require.NoError(t, err)
	assert.Equal(t, result1, result2)

	key1, err := MarshalCanonical(IRObject{composed: IRInt(1)})
	require.NoError(t, err)
	key2, err := MarshalCanonical(IRObject{decomposed: IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	input := "a\xe2\x80\xa8b\xe2\x80\xa9c"
	result, err := MarshalCanonical(IRString(input))
	require.NoError(t, err)
	assert.Equal(t, `"`+input+`"`, string(result))
}

func TestMarshalCanonicalEscapedBackslashKept(t *testing.T) {
	// A literal backslash followed by the text u2028 must stay escaped.
	input := `x\u2028`
	result, err := MarshalCanonical(IRString(input))
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\nb\"c\\"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\"c\\"`, string(result))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	cases := []IRValue{
		IRString("hello"),
		IRArray{IRInt(1), IRString("two"), IRBool(false), IRNull{}},
		IRObject{"nested": IRObject{"array": IRArray{IRInt(1)}}, "simple": IRString("v")},
	}
	for _, original := range cases {
		first, err := MarshalCanonical(original)
		require.NoError(t, err)
		val, err := UnmarshalIRValue(first)
		require.NoError(t, err)
		second, err := MarshalCanonical(val)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add("hello")
	f.Add("<>&")
	f.Add("tab\there")
	f.Fuzz(func(t *testing.T, s string) {
		first, err := MarshalCanonical(IRString(s))
		if err != nil {
			return
		}
		val, err := UnmarshalIRValue(first)
		require.NoError(t, err)
		second, err := MarshalCanonical(val)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
