package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/ipbus/uhal-go/pkg/log"
)

// RunFilter copies matching events into a new capture file and returns how
// many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			if n, werr := logger.Dropped(); n > 0 {
				return count - int(n), fmt.Errorf("failed to write %d event(s): %w", n, werr)
			}
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
}
