package manifest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("missing file should be empty, len = %d", m.Len())
	}
}

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"thread_id,thread_title,notion_url,status,notes",
		"111,Landing page,https://emerald-dev.notion.site/t1,approved,",
		"222,Old request,,ignored,handled before bot",
		"333,Short row",
		",no thread id,,approved,",
	}, "\n")

	m, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}

	entry, ok := m.Lookup("111")
	if !ok {
		t.Fatal("thread 111 not found")
	}
	if entry.Status != StatusApproved || entry.TaskURL != "https://emerald-dev.notion.site/t1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	entry, ok = m.Lookup("222")
	if !ok || entry.Status != StatusIgnored {
		t.Fatalf("thread 222: ok=%v entry=%+v", ok, entry)
	}

	// Short rows default to pending.
	entry, ok = m.Lookup("333")
	if !ok || entry.Status != StatusPending {
		t.Fatalf("thread 333: ok=%v entry=%+v", ok, entry)
	}

	if _, ok := m.Lookup("999"); ok {
		t.Fatal("unknown thread should not be found")
	}
}

func TestParseWithoutHeader(t *testing.T) {
	m, err := Parse(strings.NewReader("111,Title,https://x.notion.site/t,approved,"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := m.Lookup("111"); !ok {
		t.Fatal("headerless row not parsed")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	entries := []Entry{
		{ThreadID: "111", ThreadTitle: "Landing page", TaskURL: "https://x.notion.site/t1", Status: StatusApproved},
		{ThreadID: "222", ThreadTitle: "No status row"},
	}

	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	m, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entry, ok := m.Lookup("111")
	if !ok || entry.Status != StatusApproved {
		t.Fatalf("thread 111: ok=%v entry=%+v", ok, entry)
	}
	entry, ok = m.Lookup("222")
	if !ok || entry.Status != StatusPending {
		t.Fatalf("missing status should be written as pending: ok=%v entry=%+v", ok, entry)
	}
}
