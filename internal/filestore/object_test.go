package filestore

import (
	"testing"

	"github.com/koustreak/tablekit/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		loc, def    string
		bucket, key string
		wantErr     bool
	}{
		{"imports/users.csv", "", "imports", "users.csv", false},
		{"/imports/2024/users.csv", "", "imports", "2024/users.csv", false},
		{"users.csv", "uploads", "uploads", "users.csv", false},
		{"users.csv", "", "", "", true},
		{"", "uploads", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			bucket, key, err := ParseLocation(tt.loc, tt.def)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestObjectInfo_Name(t *testing.T) {
	assert.Equal(t, "users.csv", ObjectInfo{Key: "2024/01/users.csv"}.Name())
}
