package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// FileSink writes traces under Dir as <Dir>/<nodeId>/rdma_operate<suffix>.txt.
type FileSink struct {
	Dir string
}

// NewFileSink creates a file sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Reset removes the output directory and everything below it.
func (s *FileSink) Reset() error {
	if s.Dir == "" {
		return errors.NewSinkError("Reset", "output directory is not set", nil)
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return errors.NewSinkError("Reset", fmt.Sprintf("failed to remove %s", s.Dir), err)
	}
	return nil
}

// Write implements Sink.
func (s *FileSink) Write(ctx context.Context, key Key, phases []types.Phase) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.Dir, key.NodeID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewSinkError("Write", fmt.Sprintf("failed to create %s", dir), err)
	}

	name := filepath.Join(dir, key.FileName())
	f, err := os.Create(name)
	if err != nil {
		return "", errors.NewSinkError("Write", fmt.Sprintf("failed to create %s", name), err)
	}

	if err := Render(f, phases); err != nil {
		f.Close()
		return "", errors.NewSinkError("Write", fmt.Sprintf("failed to write %s", name), err)
	}
	if err := f.Close(); err != nil {
		return "", errors.NewSinkError("Write", fmt.Sprintf("failed to close %s", name), err)
	}
	return name, nil
}
