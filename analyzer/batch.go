package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"teachprep-server-go/models"
)

// FileResult is the outcome of analyzing one class data file.
type FileResult struct {
	ClassName string               `json:"class_name"`
	Success   bool                 `json:"success"`
	Profile   *models.ClassProfile `json:"data,omitempty"`
	Error     string               `json:"error,omitempty"`
}

const batchParallelism = 4

// ListClassFiles returns the Excel files in the class data directory,
// sorted by name.
func ListClassFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".xlsx" || ext == ".xls" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// AnalyzeFile opens and analyzes one class data file; the class name is the
// file name without extension.
func (s *Service) AnalyzeFile(path string) (string, models.ClassProfile, error) {
	className := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return className, models.ClassProfile{}, fmt.Errorf("open class data file: %w", err)
	}
	defer f.Close()

	profile, err := s.AnalyzeUpload(f, className)
	return className, profile, err
}

// AnalyzeDir analyzes up to maxCount Excel files from dir with bounded
// parallelism, preserving file order in the results. Per-file failures are
// recorded, not fatal.
func (s *Service) AnalyzeDir(ctx context.Context, dir string, maxCount int) ([]FileResult, error) {
	files, err := ListClassFiles(dir)
	if err != nil {
		return nil, err
	}
	if maxCount > 0 && len(files) > maxCount {
		files = files[:maxCount]
	}

	results := make([]FileResult, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			className, profile, err := s.AnalyzeFile(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("batch analysis failed for file", "path", path, "error", err)
				results[i] = FileResult{ClassName: className, Success: false, Error: err.Error()}
				return nil
			}
			results[i] = FileResult{ClassName: className, Success: true, Profile: &profile}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
