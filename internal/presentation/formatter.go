package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatJSON writes v as indented JSON
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatRunsTable writes one line per run
func (f *Formatter) FormatRunsTable(runs []RunDTO) error {
	tw := tabwriter.NewWriter(f.writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tANIMAL\tKIND\tTRIALS\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(r.ID), r.Name, dash(r.AnimalID), r.Kind, r.NumTrials, r.Status,
			r.StartedAt.Local().Format(timeLayout), duration(r))
	}
	return tw.Flush()
}

// FormatRunDetail writes a run followed by its trials
func (f *Formatter) FormatRunDetail(r RunDTO) error {
	_, _ = fmt.Fprintf(f.writer, "Run:     %s\nName:    %s\nAnimal:  %s\nKind:    %s\nPath:    %s\nStatus:  %s\nStarted: %s\nTook:    %s\n\n",
		r.ID, r.Name, dash(r.AnimalID), r.Kind, r.Path, r.Status,
		r.StartedAt.Local().Format(timeLayout), duration(r))

	if len(r.Trials) == 0 {
		_, err := fmt.Fprintln(f.writer, "No trials recorded.")
		return err
	}
	tw := tabwriter.NewWriter(f.writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TRIAL\tTOUCHES\tHITS\tREWARDED\tEARLY EXIT\tDURATION")
	for _, t := range r.Trials {
		touches, hits, rewarded := "-", "-", "-"
		if t.HasTouchLog {
			touches, hits, rewarded = fmt.Sprint(t.Touches), fmt.Sprint(t.Hits), fmt.Sprint(t.RewardedHits)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			t.Number, touches, hits, rewarded, t.EarlyExit, t.EndedAt.Sub(t.StartedAt).Round(time.Second))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func duration(r RunDTO) string {
	if r.FinishedAt == nil {
		return "running"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}
