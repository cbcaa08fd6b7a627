package loader

import (
	"context"
	"errors"
	"io/fs"
)

func loadFromFS(ctx context.Context, files fs.FS, name string, limit int64) ([]byte, error) {
	if name == "" {
		return nil, errors.New("loader: fs path is required")
	}
	if files == nil {
		return nil, errors.New("loader: fs is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if info, err := fs.Stat(files, name); err == nil {
		if err := checkSize(name, info.Size(), limit); err != nil {
			return nil, err
		}
	}
	data, err := fs.ReadFile(files, name)
	if err != nil {
		return nil, err
	}
	return data, checkSize(name, int64(len(data)), limit)
}
