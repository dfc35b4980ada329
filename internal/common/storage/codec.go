package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const zstdSuffix = ".zst"

// FetchAll reads an entire object into memory. Objects stored with a ".zst"
// key suffix are transparently decompressed, which is how bulk test case
// archives are kept to save storage.
func FetchAll(ctx context.Context, store ObjectStorage, bucket, objectKey string) ([]byte, error) {
	obj, err := store.GetObject(ctx, bucket, objectKey)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	if !strings.HasSuffix(objectKey, zstdSuffix) {
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, fmt.Errorf("read object failed: %w", err)
		}
		return data, nil
	}

	dec, err := zstd.NewReader(obj)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader failed: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress object failed: %w", err)
	}
	return data, nil
}

// PutCompressed stores data zstd-compressed under objectKey + ".zst" and
// returns the final key.
func PutCompressed(ctx context.Context, store ObjectStorage, bucket, objectKey string, data []byte) (string, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("create zstd writer failed: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("compress object failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("flush zstd writer failed: %w", err)
	}

	key := objectKey + zstdSuffix
	if err := store.PutObject(ctx, bucket, key, &buf, int64(buf.Len()), "application/zstd"); err != nil {
		return "", err
	}
	return key, nil
}
