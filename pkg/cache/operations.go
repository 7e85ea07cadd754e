package cache

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

// Operation renders cache management results for the command line.
type Operation struct {
	manager Manager
}

// NewOperation creates a new cache operation instance.
func NewOperation(manager Manager) *Operation {
	return &Operation{
		manager: manager,
	}
}

// Clean removes entries older than olderThan, or all entries when olderThan is zero.
func (op *Operation) Clean(olderThan time.Duration) (string, error) {
	logger.Debug("Cleaning cache", logger.Fields{"older_than": olderThan.String()})

	result, err := op.manager.Clean(CleanOptions{OlderThan: olderThan})
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}

	if result.FilesRemoved == 0 {
		return "No files were removed from the cache.", nil
	}
	return fmt.Sprintf("Successfully cleaned cache. Removed %d entries, freed %s of disk space.",
		result.FilesRemoved, humanize.IBytes(uint64(result.TotalFreed))), nil
}

// GetInfo returns information about the cache.
func (op *Operation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}

	oldest, newest := "-", "-"
	if !info.Oldest.IsZero() {
		oldest = humanize.Time(info.Oldest)
		newest = humanize.Time(info.Newest)
	}

	return fmt.Sprintf(`Cache Information:
  Directory:    %s
  Total Size:   %s
  Entries:      %d
  Oldest Entry: %s
  Newest Entry: %s`,
		info.Directory,
		humanize.IBytes(uint64(info.TotalSize)),
		info.Files,
		oldest,
		newest,
	), nil
}

// GetDirectory returns the cache directory path.
func (op *Operation) GetDirectory() string {
	return op.manager.GetDirectory()
}
