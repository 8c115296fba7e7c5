package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://txn-exports/transactions/a.csv", "txn-exports", "transactions/a.csv", false},
		{"gs://txn-exports/transactions/*", "txn-exports", "transactions/*", false},
		{"gs://txn-exports", "txn-exports", "", false},
		{"s3://txn-exports/a.csv", "", "", true},
		{"gs:///a.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestListPrefix(t *testing.T) {
	assert.Equal(t, "transactions/", ListPrefix("transactions/*"))
	assert.Equal(t, "transactions/processed_", ListPrefix("transactions/processed_*.csv"))
	assert.Equal(t, "transactions/a.csv", ListPrefix("transactions/a.csv"))
	assert.Equal(t, "", ListPrefix("*"))
}

func TestExtractFilename(t *testing.T) {
	assert.Equal(t, "file.csv", ExtractFilename("gs://bucket/folder/file.csv"))
	assert.Equal(t, "bucket", ExtractFilename("gs://bucket"))
	assert.Equal(t, "file.csv", ExtractFilename("folder/file.csv"))
}
