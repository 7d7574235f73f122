package spreadsheet

import (
	"strings"
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CSV(t *testing.T) {
	text := "id,name,bio\n1,alice,\"likes, commas\"\n\n2,bob\n"

	c, err := ParseString(text, ParseOptions{FileName: "people.csv"})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "bio"}, c.Headers)
	assert.Equal(t, 2, c.RowCount)
	assert.Equal(t, "likes, commas", c.Rows[0]["bio"])
	assert.Equal(t, "", c.Rows[1]["bio"], "short rows are padded")
}

func TestParse_TSVDisablesQuoting(t *testing.T) {
	text := "id\tquote\n1\t\"hello\"\n"

	c, err := ParseString(text, ParseOptions{FileName: "data.tsv"})
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, c.Rows[0]["quote"])
}

func TestParse_DetectsTabsInPastedText(t *testing.T) {
	c, err := ParseString("a\tb\r\n1\t2\r\n", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Headers)
	assert.Equal(t, "2", c.Rows[0]["b"])
}

func TestParse_Headers(t *testing.T) {
	c, err := ParseString("\ufeffname, name ,\nx,y,z\n", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "name_2", "column_3"}, c.Headers)
}

func TestParse_MaxRows(t *testing.T) {
	c, err := ParseString("n\n1\n2\n3\n", ParseOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.RowCount)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""), ParseOptions{})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = ParseString("a,b\n\"unterminated,1\n", ParseOptions{})
	assert.True(t, errs.IsInvalidInput(err))
}
