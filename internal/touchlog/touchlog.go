// Package touchlog reads the per-trial screen-touch log written by the front
// end and reduces it to the counts reported at the end of each trial.
package touchlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the touch log the front end writes into each trial directory.
const DefaultFileName = "screen_touches.csv"

// ErrNoTouchLog is returned when a trial directory has no touch log.
var ErrNoTouchLog = errors.New("no touch log")

// Summary counts the screen strikes of one trial.
type Summary struct {
	Touches      int
	Hits         int
	RewardedHits int
}

// Reader locates and parses touch logs.
type Reader struct {
	FileName string
}

// NewReader returns a Reader for fileName, falling back to DefaultFileName.
func NewReader(fileName string) *Reader {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &Reader{FileName: fileName}
}

// Path is the touch log location inside trialPath.
func (r *Reader) Path(trialPath string) string {
	name := r.FileName
	if name == "" {
		name = DefaultFileName
	}
	return filepath.Join(trialPath, name)
}

// Read summarizes the touch log of the trial stored at trialPath.
func (r *Reader) Read(trialPath string) (Summary, error) {
	path := r.Path(trialPath)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoTouchLog, path)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("stat touch log: %w", err)
	}

	f, err := os.Open(path) //nolint:gosec // path is derived from the trial directory
	if err != nil {
		return Summary{}, fmt.Errorf("opening touch log: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return Summary{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Parse reads a touch log with a header row. Every data row is one touch;
// is_hit and is_reward_bug are boolean columns.
func Parse(r io.Reader) (Summary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("reading header: %w", err)
	}

	hitCol, rewardCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "is_hit":
			hitCol = i
		case "is_reward_bug":
			rewardCol = i
		}
	}
	if hitCol < 0 {
		return Summary{}, errors.New("missing is_hit column")
	}

	var s Summary
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("reading row %d: %w", s.Touches+1, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		s.Touches++
		if !truthy(field(record, hitCol)) {
			continue
		}
		s.Hits++
		if truthy(field(record, rewardCol)) {
			s.RewardedHits++
		}
	}
	return s, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func truthy(v string) bool {
	switch strings.TrimSpace(v) {
	case "True", "true", "TRUE", "1":
		return true
	default:
		return false
	}
}
