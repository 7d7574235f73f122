package main

import (
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTableRef(t *testing.T) {
	tests := []struct {
		in   string
		want pgmeta.TableRef
		ok   bool
	}{
		{"todos", pgmeta.TableRef{Schema: "public", Name: "todos"}, true},
		{"app.todos", pgmeta.TableRef{Schema: "app", Name: "todos"}, true},
		{".todos", pgmeta.TableRef{}, false},
		{"app.", pgmeta.TableRef{}, false},
		{"", pgmeta.TableRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTableRef(tt.in)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"table", "create"},
		{"table", "import"},
		{"table", "infer"},
		{"auth", "set"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
