package engine

import (
	"fmt"
	"os"
	"time"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// appendDuration appends the measured execution time to the agent's
// output file so the caller sees how long the job ran.
func appendDuration(path string, elapsed time.Duration) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path is engine-owned
	if err != nil {
		return fmt.Errorf("%w: %w", groveerrors.ErrMissingOutput, err)
	}
	defer func() { _ = f.Close() }()

	_, err = fmt.Fprintf(f, "\n\nExecution time: %.2f minutes", elapsed.Minutes())
	return err
}

// ConsumeSummary reads the job's output file and deletes it. The file is
// owned by the job; retrieval is the one read it gets.
func ConsumeSummary(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is engine-owned
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("summary %s: %w: %w", path, groveerrors.ErrMissingOutput, err)
		}
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return string(data), nil
}

// discardSummary removes an output file a failed or cancelled job left
// behind. Missing files are fine.
func discardSummary(path string) {
	_ = os.Remove(path)
}
