package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ibeckermayer/reelsort/internal/config"
)

// StepName names a directory of outputs kept in the cache for debugging and
// offline replay.
type StepName string

const (
	StepSnapshot   StepName = "snapshots"  // raw page HTML
	StepCollection StepName = "collection" // collected items
	StepPlan       StepName = "plans"      // sort plans
	StepReport     StepName = "reports"    // rendered reports
)

// KeepStepFiles is how many outputs each step retains; older ones are
// removed after every write.
var KeepStepFiles = 50

// ErrNoOutput is returned when a step has nothing cached yet.
var ErrNoOutput = errors.New("no cached output")

// cacheDir is swapped out by tests.
var cacheDir = config.CacheDir

// StepDir returns the directory holding a step's outputs.
func StepDir(step StepName) (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(step)), nil
}

// SaveStepOutput writes v as indented JSON and returns the file's path.
func SaveStepOutput[T any](step StepName, v T) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s output: %w", step, err)
	}
	return writeStep(step, b, ".json")
}

// SaveTextOutput writes content verbatim with the given extension (".html").
func SaveTextOutput(step StepName, content string, ext string) (string, error) {
	return writeStep(step, []byte(content), ext)
}

// writeStep names the file after the current time plus a counter that keeps
// writes within the same millisecond apart and in order.
func writeStep(step StepName, data []byte, ext string) (string, error) {
	dir, err := StepDir(step)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", step, err)
	}

	base := time.Now().Format("2006-01-02T15-04-05.000")
	var f *os.File
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s-%02d%s", base, n, ext)
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || n > 100 {
			return "", fmt.Errorf("create %s output: %w", step, err)
		}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s output: %w", step, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write %s output: %w", step, err)
	}

	if err := prune(dir, KeepStepFiles); err != nil {
		return f.Name(), fmt.Errorf("prune %s: %w", step, err)
	}
	return f.Name(), nil
}

// StepFiles lists a step's outputs, oldest first.
func StepFiles(step StepName) ([]string, error) {
	dir, err := StepDir(step)
	if err != nil {
		return nil, err
	}
	return listDir(dir)
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// ReadDir sorts by name and names are timestamps.
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func prune(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	files, err := listDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for len(files) > keep {
		if err := os.Remove(files[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		files = files[1:]
	}
	return errors.Join(errs...)
}

// LatestStepFile returns the newest output of step, or ErrNoOutput.
func LatestStepFile(step StepName) (string, error) {
	files, err := StepFiles(step)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoOutput, step)
	}
	return files[len(files)-1], nil
}

// LoadStepOutput decodes a JSON output file.
func LoadStepOutput[T any](path string) (T, error) {
	var v T
	b, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// LoadLatestStepOutput decodes the newest output of step and returns it with
// its path.
func LoadLatestStepOutput[T any](step StepName) (T, string, error) {
	var zero T
	path, err := LatestStepFile(step)
	if err != nil {
		return zero, "", err
	}
	v, err := LoadStepOutput[T](path)
	if err != nil {
		return zero, "", err
	}
	return v, path, nil
}
