package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ReadObjectHead returns up to n leading bytes of an object.
func ReadObjectHead(ctx context.Context, bucketName, objectName string, n int64, opts ...option.ClientOption) ([]byte, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucketName).Object(objectName).NewRangeReader(ctx, 0, n)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader gs://%s/%s: %w", bucketName, objectName, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}

	return data, nil
}

// ListObjectNames returns the names of all objects in bucketName that start
// with prefix. Only names are fetched.
func ListObjectNames(ctx context.Context, bucketName, prefix string, opts ...option.ClientOption) ([]string, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("select attrs: %w", err)
	}

	var names []string
	it := client.Bucket(bucketName).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucketName, prefix, err)
		}
		names = append(names, attrs.Name)
	}

	return names, nil
}
