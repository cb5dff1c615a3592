package core

import (
	"audio-tagging/internal/storage"
	"context"
	"fmt"
	"log/slog"
	"strings"
)

func IsRemoteInput(input string) bool {
	return strings.HasPrefix(input, "s3://")
}

// StageInput makes input available as a local directory. Local paths are
// returned unchanged, s3://bucket/prefix is downloaded into dest.
func StageInput(ctx context.Context, store storage.ObjectStore, input, dest string) (string, error) {
	if !IsRemoteInput(input) {
		return input, nil
	}
	if store == nil {
		return "", fmt.Errorf("input %s requires an object store", input)
	}

	bucket, prefix, err := storage.ParseS3URI(input)
	if err != nil {
		return "", err
	}

	slog.Info("staging remote input", "bucket", bucket, "prefix", prefix, "dest", dest)
	if err := store.DownloadDir(ctx, bucket, prefix, dest, true); err != nil {
		return "", fmt.Errorf("error staging %s: %w", input, err)
	}
	return dest, nil
}
