package manifest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
)

// Statuses recognized in the mapping file. Anything else is treated as
// pending (no recovery signal).
const (
	StatusApproved = "approved"
	StatusIgnored  = "ignored"
	StatusPending  = "pending"
)

// Entry is one row of the thread -> task mapping.
type Entry struct {
	ThreadID    string
	ThreadTitle string
	TaskURL     string
	Status      string
	Notes       string
}

// Manifest is a read-only tabular lookup of thread id -> task reference,
// maintained outside this process (backfill tool, manual edits). It may be
// absent or only partially populated.
type Manifest struct {
	entries map[string]Entry
}

// Load reads the CSV mapping. A missing file yields an empty manifest; the
// mapping is an optional external source of truth, not a requirement.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{entries: map[string]Entry{}}, nil
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads mapping rows from r. The first row is a header. Short rows
// are tolerated; rows without a thread id are skipped.
func Parse(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	m := &Manifest{entries: map[string]Entry{}}
	for i, row := range rows {
		if i == 0 && looksLikeHeader(row) {
			continue
		}
		entry := Entry{Status: StatusPending}
		if len(row) > 0 {
			entry.ThreadID = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			entry.ThreadTitle = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			entry.TaskURL = strings.TrimSpace(row[2])
		}
		if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
			entry.Status = strings.ToLower(strings.TrimSpace(row[3]))
		}
		if len(row) > 4 {
			entry.Notes = strings.TrimSpace(row[4])
		}
		if entry.ThreadID == "" {
			continue
		}
		m.entries[entry.ThreadID] = entry
	}
	return m, nil
}

func looksLikeHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "thread_id")
}

// Lookup returns the entry for a thread id, if present.
func (m *Manifest) Lookup(threadID string) (Entry, bool) {
	entry, ok := m.entries[strings.TrimSpace(threadID)]
	return entry, ok
}

// Len reports the number of mapped threads.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Header is the column order used by writers of the mapping file.
func Header() []string {
	return []string{"thread_id", "thread_title", "notion_url", "status", "notes"}
}

// Write emits entries as CSV in Header order.
func Write(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header()); err != nil {
		return err
	}
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = StatusPending
		}
		if err := writer.Write([]string{e.ThreadID, e.ThreadTitle, e.TaskURL, status, e.Notes}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
