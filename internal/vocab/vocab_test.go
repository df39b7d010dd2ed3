package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDepth(t *testing.T) {
	t.Parallel()

	v0 := New(0)
	assert.True(t, v0.Contains("int"))
	assert.True(t, v0.Contains("list"))
	assert.True(t, v0.Contains("dict"))
	assert.False(t, v0.Contains("list[int]"))

	v1 := New(1)
	assert.True(t, v1.Contains("list[int]"))
	assert.True(t, v1.Contains("dict[str, int]"))
	assert.False(t, v1.Contains("list[list[int]]"))

	v2 := New(2)
	assert.True(t, v2.Contains("list[list[int]]"))
	assert.True(t, v2.Contains("dict[str, list[str]]"))
	assert.Greater(t, v2.Len(), v1.Len())
	assert.Equal(t, 2, v2.Depth())
}

func TestNegativeDepthClamps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, New(0).Len(), New(-3).Len())
}

func TestWellKnown(t *testing.T) {
	t.Parallel()

	v := New(0)
	for _, tok := range []string{"datetime", "path", "uuid", "callable"} {
		assert.True(t, v.Contains(tok), tok)
	}
	assert.False(t, v.Contains("dataframe"))
}

func TestTokensSorted(t *testing.T) {
	t.Parallel()

	toks := New(1).Tokens()
	require.NotEmpty(t, toks)
	assert.IsIncreasing(t, toks)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"  Int  ", "int"},
		{"'str'", "str"},
		{"x: float", "float"},
		{"count - int", "int"},
		{"List[int]", "list[int]"},
		{"dict[str,  list[int]]", "dict[str, list[int]]"},
		{"datetime.datetime", "datetime"},
		{"os.path", "os"},
		{"int.", "int"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Sanitize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Callable(int)", "{str: int}", "[[int]]", "", "   ", "*"} {
		_, err := Sanitize(in)
		assert.ErrorIs(t, err, ErrMalformedType, in)
	}
}

func TestCategoriesMatch(t *testing.T) {
	t.Parallel()

	c := NewCategories(DefaultCategories)
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Helpers", "Helpers", true},
		{"  \"pure utilities\" ", "Pure utilities", true},
		{"4. I/O functions", "I/O functions", true},
		{"Tests.", "Tests", true},
		{"Utility", "", false},
	}

	for _, tt := range tests {
		got, ok := c.Match(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Len(t, c.Names(), len(DefaultCategories))
}
