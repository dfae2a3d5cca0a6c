// Package export renders a channel's buffered entries as txt, csv or json
// with optional time-window and content filters.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"serialscope/models"
)

// Supported export formats
const (
	FormatTxt  = "txt"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Options selects the format and filters for an export
type Options struct {
	Format    string
	StartTime *int64 // inclusive ms bound; nil = unbounded
	EndTime   *int64
	Filter    string // case-insensitive regex; plain substring on compile error
}

// Export renders entries per opts
func Export(entries []models.LineEntry, opts Options) ([]byte, error) {
	filtered := applyFilters(entries, opts)

	switch opts.Format {
	case FormatTxt:
		return exportTxt(filtered), nil
	case FormatCSV:
		return exportCSV(filtered), nil
	case FormatJSON:
		return exportJSON(filtered)
	default:
		return nil, fmt.Errorf("unknown export format: %q", opts.Format)
	}
}

// ContentType returns the MIME type for a format
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain"
	}
}

// Filename builds the download filename for a format
func Filename(format string, now time.Time) string {
	return fmt.Sprintf("serial-export-%d.%s", now.UnixMilli(), format)
}

func applyFilters(entries []models.LineEntry, opts Options) []models.LineEntry {
	match := matcherFor(opts.Filter)

	out := make([]models.LineEntry, 0, len(entries))
	for _, e := range entries {
		if opts.StartTime != nil && e.Timestamp < *opts.StartTime {
			continue
		}
		if opts.EndTime != nil && e.Timestamp > *opts.EndTime {
			continue
		}
		if match != nil && !match(e.Data) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// matcherFor attempts the filter as a case-insensitive regex and falls back
// to a plain case-sensitive substring match when it does not compile
func matcherFor(filter string) func(string) bool {
	if filter == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + filter)
	if err != nil {
		return func(s string) bool { return strings.Contains(s, filter) }
	}
	return re.MatchString
}

func isoTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func exportTxt(entries []models.LineEntry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		if e.Direction == models.DirectionTx {
			fmt.Fprintf(&b, "[%s] TX > %s\n", isoTime(e.Timestamp), e.Data)
		} else {
			fmt.Fprintf(&b, "[%s] RX < %s\n", isoTime(e.Timestamp), e.Data)
		}
	}
	return b.Bytes()
}

func exportCSV(entries []models.LineEntry) []byte {
	var b bytes.Buffer
	b.WriteString("Timestamp,ISO_Time,Direction,Data,Mode\n")
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = models.ModeASCII
		}
		data := strings.ReplaceAll(e.Data, `"`, `""`)
		fmt.Fprintf(&b, "%d,%s,%s,\"%s\",%s\n", e.Timestamp, isoTime(e.Timestamp), e.Direction, data, mode)
	}
	return b.Bytes()
}

type jsonEntry struct {
	Timestamp int64  `json:"timestamp"`
	ISOTime   string `json:"isoTime"`
	Direction string `json:"direction"`
	Data      string `json:"data"`
	Mode      string `json:"mode"`
	Index     int64  `json:"index"`
}

func exportJSON(entries []models.LineEntry) ([]byte, error) {
	out := make([]jsonEntry, len(entries))
	for i, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = models.ModeASCII
		}
		out[i] = jsonEntry{
			Timestamp: e.Timestamp,
			ISOTime:   isoTime(e.Timestamp),
			Direction: e.Direction,
			Data:      e.Data,
			Mode:      mode,
			Index:     e.Index,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
