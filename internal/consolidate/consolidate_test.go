package consolidate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/store"
)

func testSetup(t *testing.T) (*store.Store, *Consolidator, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st, err := store.Open(store.Config{
		Path:        filepath.Join(dir, "memories.json"),
		ArchivePath: filepath.Join(dir, "archive.db"),
		Now:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := New(st, Config{InterPersonDelay: time.Millisecond}, nil, nil)
	c.now = func() time.Time { return now }
	return st, c, &now
}

func seedPreference(t *testing.T, st *store.Store, person, key, value string) {
	t.Helper()
	if _, err := st.Upsert(context.Background(), person, policy.TypePreference, key, value, 0.8, policy.RiskLow, 0); err != nil {
		t.Fatalf("upsert %s: %v", key, err)
	}
}

func TestSummarizeClustersOldPreferences(t *testing.T) {
	st, c, now := testSetup(t)
	seedPreference(t, st, "lisa", "mag:sushi", "sushi")
	seedPreference(t, st, "lisa", "mag:pizza", "pizza")
	seedPreference(t, st, "lisa", "mag:pasta", "pasta")

	*now = now.Add(31 * 24 * time.Hour)
	report, err := c.SummarizeUserMemories(context.Background(), "lisa")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if report.SummariesCreated != 1 {
		t.Fatalf("expected 1 summary, got %+v", report)
	}
	if report.MemoriesArchived != 3 {
		t.Errorf("expected 3 archived, got %d", report.MemoriesArchived)
	}
	if len(st.ListByPerson("lisa")) != 0 {
		t.Error("sources should no longer be active")
	}

	summaries := st.ListSummaries("lisa")
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary record, got %d", len(summaries))
	}
	text := summaries[0].SummaryText
	for _, want := range []string{"sushi", "pizza", "pasta"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary %q missing %q", text, want)
		}
	}
}

func TestSummarizeSkipsRecentMemories(t *testing.T) {
	st, c, _ := testSetup(t)
	seedPreference(t, st, "lisa", "mag:sushi", "sushi")
	seedPreference(t, st, "lisa", "mag:pizza", "pizza")
	seedPreference(t, st, "lisa", "mag:pasta", "pasta")

	report, err := c.SummarizeUserMemories(context.Background(), "lisa")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if report.SummariesCreated != 0 {
		t.Errorf("recent memories must not be consolidated: %+v", report)
	}
	if len(st.ListByPerson("lisa")) != 3 {
		t.Error("sources should remain active")
	}
}

func TestSummarizeSkipsSmallClusters(t *testing.T) {
	st, c, now := testSetup(t)
	seedPreference(t, st, "lisa", "mag:sushi", "sushi")
	seedPreference(t, st, "lisa", "mag:pizza", "pizza")

	*now = now.Add(31 * 24 * time.Hour)
	report, err := c.SummarizeUserMemories(context.Background(), "lisa")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if report.SummariesCreated != 0 {
		t.Errorf("cluster of 2 must not be summarized: %+v", report)
	}
}

func TestClusterKeyGroupsByPrefix(t *testing.T) {
	a := clusterKey(store.StoredMemory{Type: policy.TypePreference, Key: "mag:sushi"})
	b := clusterKey(store.StoredMemory{Type: policy.TypePreference, Key: "mag:pizza"})
	c := clusterKey(store.StoredMemory{Type: policy.TypePreference, Key: "hasst:stau"})
	if a != b {
		t.Errorf("same prefix should share a cluster: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different prefixes should not share a cluster: %q", a)
	}
}

func TestRunAllCoversEveryPerson(t *testing.T) {
	st, c, now := testSetup(t)
	for _, person := range []string{"lisa", "tom"} {
		seedPreference(t, st, person, "mag:sushi", "sushi")
		seedPreference(t, st, person, "mag:pizza", "pizza")
		seedPreference(t, st, person, "mag:pasta", "pasta")
	}

	*now = now.Add(31 * 24 * time.Hour)
	report, err := c.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if report.SummariesCreated != 2 {
		t.Errorf("expected 2 summaries, got %+v", report)
	}
	if report.MemoriesArchived != 6 {
		t.Errorf("expected 6 archived, got %d", report.MemoriesArchived)
	}
}

func TestRunAllHonorsCancellation(t *testing.T) {
	st, c, now := testSetup(t)
	for _, person := range []string{"lisa", "tom"} {
		seedPreference(t, st, person, "mag:sushi", "sushi")
		seedPreference(t, st, person, "mag:pizza", "pizza")
		seedPreference(t, st, person, "mag:pasta", "pasta")
	}
	*now = now.Add(31 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.RunAll(ctx); err == nil {
		t.Error("expected context error")
	}
}
