package taskexec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Materializer writes one attempt's generated code, plus the task's fixed
// test files, to a project directory the compile queue's container
// provider can build against, and returns a cleanup func to remove it.
//
// This is the one place in the core that touches the filesystem directly;
// os.MkdirTemp/os.WriteFile are the simplest correct tool for writing
// scratch files ahead of an ad hoc compiler invocation.
type Materializer interface {
	Materialize(task model.TaskManifest, code string) (projectDir string, cleanup func(), err error)
}

// DirMaterializer is the default Materializer: one fresh temp directory per
// attempt under BaseDir (os.TempDir() if empty).
type DirMaterializer struct {
	BaseDir      string
	SourceName   string // "solution.erp" if empty
}

// NewDirMaterializer creates a DirMaterializer rooted at baseDir. An empty
// baseDir falls back to the OS temp directory.
func NewDirMaterializer(baseDir string) *DirMaterializer {
	return &DirMaterializer{BaseDir: baseDir}
}

func (m *DirMaterializer) Materialize(task model.TaskManifest, code string) (string, func(), error) {
	dir, err := os.MkdirTemp(m.BaseDir, fmt.Sprintf("benchflow-eval-%s-*", task.ID))
	if err != nil {
		return "", nil, fmt.Errorf("taskexec: materialize %s: %w", task.ID, err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	sourceName := m.SourceName
	if sourceName == "" {
		sourceName = "solution.erp"
	}
	if err := os.WriteFile(filepath.Join(dir, sourceName), []byte(code), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("taskexec: write generated code for %s: %w", task.ID, err)
	}

	for _, tf := range task.TestFiles {
		dest := filepath.Join(dir, tf.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("taskexec: materialize test file %s: %w", tf.Path, err)
		}
		if err := os.WriteFile(dest, tf.Content, 0o644); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("taskexec: write test file %s: %w", tf.Path, err)
		}
	}

	return dir, cleanup, nil
}
