package file

import (
	"context"
	"fmt"
	"os"

	"github.com/ajprasad1994/opsBuddy/pkg/config"
)

// FileSource implements the config.Source interface for a services document on local disk.
type FileSource struct {
	filePath string
}

// NewFileSource creates a new file-based services source.
// The file must exist and be readable at creation time.
func NewFileSource(filePath string) (config.Source, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("failed to access file %s: %w", filePath, err)
	}

	return &FileSource{filePath: filePath}, nil
}

// Get reads the entire file content.
func (fs *FileSource) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file %s: %w", fs.filePath, err)
	}

	return data, nil
}

// Close is a no-op for file sources.
func (fs *FileSource) Close() error {
	return nil
}
