package spreadsheet

import (
	"context"
	"path"
	"strings"

	"github.com/koustreak/tablekit/internal/filestore"
)

// IsSpreadsheet reports whether a file name looks like CSV or TSV.
func IsSpreadsheet(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv", ".tab", ".txt":
		return true
	}
	return false
}

// OpenObject opens an import file stored at bucket/key. The caller must
// close the returned object.
func OpenObject(ctx context.Context, store filestore.Store, bucket, key string) (filestore.Object, ParseOptions, error) {
	obj, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, ParseOptions{}, err
	}
	opts := ParseOptions{FileName: key}
	if ct := obj.Info().ContentType; strings.Contains(ct, "tab-separated") {
		opts.Delimiter = '\t'
	}
	return obj, opts, nil
}

// ListSources returns the spreadsheet files under prefix in bucket.
func ListSources(ctx context.Context, store filestore.Store, bucket, prefix string) ([]filestore.ObjectInfo, error) {
	objects, err := store.ListObjects(ctx, bucket, filestore.ListOptions{Prefix: prefix, Recursive: true})
	if err != nil {
		return nil, err
	}
	sources := make([]filestore.ObjectInfo, 0, len(objects))
	for _, o := range objects {
		if !o.IsDir && IsSpreadsheet(o.Key) {
			sources = append(sources, o)
		}
	}
	return sources, nil
}
