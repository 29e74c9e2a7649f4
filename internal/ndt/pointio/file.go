package pointio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxParallelReads bounds the files decoded at once by ReadFiles.
const maxParallelReads = 4

// ReadFile loads the points of path, choosing the decoder by extension:
// .pcd for PCD, .asc, .txt, .xyz or .csv for ASC text.
func ReadFile(path string) ([]r3.Vec, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pcd":
		return ReadPCD(f)
	case ".asc", ".txt", ".xyz", ".csv":
		return ReadASC(f)
	default:
		return nil, fmt.Errorf("unsupported point file extension %q", ext)
	}
}

// WriteFile stores points at path, choosing the encoder by extension like
// ReadFile. ASC output carries no extra columns.
func WriteFile(path string, points []r3.Vec) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pcd" && ext != ".asc" && ext != ".txt" && ext != ".xyz" && ext != ".csv" {
		return fmt.Errorf("unsupported point file extension %q", ext)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if ext == ".pcd" {
		err = WritePCD(f, points)
	} else {
		err = WriteASC(f, points, "", nil)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadFiles loads every path concurrently and returns the point sets in
// the order of paths. The first failure cancels the remaining reads.
func ReadFiles(ctx context.Context, paths []string) ([][]r3.Vec, error) {
	out := make([][]r3.Vec, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pts, err := ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out[i] = pts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
