package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirTarget writes exported tables as files under {dir}/{runID}/.
type DirTarget struct {
	dir string
}

// NewDirTarget creates a directory export target.
func NewDirTarget(dir string) *DirTarget {
	return &DirTarget{dir: dir}
}

// Name returns the target identifier.
func (d *DirTarget) Name() string { return d.dir }

// Write stores one table document, replacing any previous export of it.
func (d *DirTarget) Write(_ context.Context, runID, table string, data []byte) error {
	dir := filepath.Join(d.dir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, table+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", table, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, table+".json"))
}
