package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

const pdfContentType = "application/pdf"

// Mirror copies downloaded reports into a bucket as <key>/<file name>.
type Mirror struct {
	store  Store
	bucket string
}

// NewMirror builds a Mirror over store.
func NewMirror(store Store, bucket string) *Mirror {
	return &Mirror{store: store, bucket: bucket}
}

// ObjectName is the object key a report file is mirrored under.
func ObjectName(key, fileName string) string {
	return path.Join(key, fileName)
}

// Mirror uploads folder/fileName and returns the object name.
func (m *Mirror) Mirror(ctx context.Context, key, folder, fileName string) (string, error) {
	f, err := os.Open(filepath.Join(folder, fileName))
	if err != nil {
		return "", err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	object := ObjectName(key, fileName)
	if err := m.store.PutObject(ctx, m.bucket, object, f, stat.Size(), PutOptions{ContentType: pdfContentType}); err != nil {
		return "", fmt.Errorf("put %s: %w", object, err)
	}
	return object, nil
}
