// Package consolidate merges clusters of old, related memories into
// compact summary records and moves the sources to the archive.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumehq/recall/internal/events"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/store"
)

// Config tunes the clustering thresholds.
type Config struct {
	// MinAgeDays excludes memories updated more recently than this.
	MinAgeDays int `yaml:"min_age_days"`
	// MinClusterSize is the smallest group worth summarizing.
	MinClusterSize int `yaml:"min_cluster_size"`
	// InterPersonDelay throttles batch runs across persons.
	InterPersonDelay time.Duration `yaml:"inter_person_delay"`
}

// DefaultConfig returns the recommended consolidation thresholds.
func DefaultConfig() Config {
	return Config{
		MinAgeDays:       30,
		MinClusterSize:   3,
		InterPersonDelay: 100 * time.Millisecond,
	}
}

// Report accumulates the outcome of a consolidation run.
type Report struct {
	TotalProcessed   int      `json:"total_processed"`
	SummariesCreated int      `json:"summaries_created"`
	MemoriesArchived int      `json:"memories_archived"`
	Errors           []string `json:"errors,omitempty"`
}

// Consolidator groups and summarizes a person's aging memories.
type Consolidator struct {
	store  *store.Store
	config Config
	events *events.Log
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Consolidator. Zero config fields fall back to defaults.
func New(st *store.Store, cfg Config, log *events.Log, logger *zap.Logger) *Consolidator {
	def := DefaultConfig()
	if cfg.MinAgeDays <= 0 {
		cfg.MinAgeDays = def.MinAgeDays
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = def.MinClusterSize
	}
	if cfg.InterPersonDelay <= 0 {
		cfg.InterPersonDelay = def.InterPersonDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{store: st, config: cfg, events: log, logger: logger, now: time.Now}
}

// SummarizeUserMemories clusters one person's old memories by type and
// key prefix, writes a summary per qualifying cluster, and archives the
// sources. Partial failures are reported, not fatal: remaining clusters
// still run.
func (c *Consolidator) SummarizeUserMemories(ctx context.Context, person string) (Report, error) {
	var report Report

	memories := c.store.ListByPerson(person)
	report.TotalProcessed = len(memories)

	cutoff := c.now().Add(-time.Duration(c.config.MinAgeDays) * 24 * time.Hour)
	clusters := make(map[string][]store.StoredMemory)
	for _, m := range memories {
		if m.UpdatedAt.After(cutoff) {
			continue
		}
		ck := clusterKey(m)
		clusters[ck] = append(clusters[ck], m)
	}

	keys := make([]string, 0, len(clusters))
	for k := range clusters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, ck := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cluster := clusters[ck]
		if len(cluster) < c.config.MinClusterSize {
			continue
		}

		sort.Slice(cluster, func(i, j int) bool {
			return cluster[i].UpdatedAt.Before(cluster[j].UpdatedAt)
		})
		ids := make([]string, len(cluster))
		for i, m := range cluster {
			ids[i] = m.ID
		}

		summary := summarize(person, cluster)
		if _, err := c.store.ArchiveCluster(ctx, person, summary, ids); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s/%s: %v", person, ck, err))
			c.logger.Warn("cluster consolidation failed",
				zap.String("person", person),
				zap.String("cluster", ck),
				zap.Error(err))
			continue
		}
		report.SummariesCreated++
		report.MemoriesArchived += len(cluster)
	}

	if report.SummariesCreated > 0 {
		if err := c.events.Append(events.Record{
			Type:   events.TypeConsolidate,
			Person: person,
			Count:  report.MemoriesArchived,
		}); err != nil {
			c.logger.Warn("event log append failed", zap.Error(err))
		}
		c.logger.Info("memories consolidated",
			zap.String("person", person),
			zap.Int("summaries", report.SummariesCreated),
			zap.Int("archived", report.MemoriesArchived))
	}
	return report, nil
}

// RunAll consolidates every person in the store. Per-person failures are
// collected in the report; only context cancellation aborts the batch.
func (c *Consolidator) RunAll(ctx context.Context) (Report, error) {
	var total Report

	persons := c.store.Persons()
	for i, person := range persons {
		if i > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(c.config.InterPersonDelay):
			}
		}
		report, err := c.SummarizeUserMemories(ctx, person)
		total.TotalProcessed += report.TotalProcessed
		total.SummariesCreated += report.SummariesCreated
		total.MemoriesArchived += report.MemoriesArchived
		total.Errors = append(total.Errors, report.Errors...)
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %v", person, err))
		}
	}
	return total, nil
}

// clusterKey groups memories by type and the key segment before the
// first colon, so "mag:sushi" and "mag:pizza" land in one cluster.
func clusterKey(m store.StoredMemory) string {
	key := store.NormalizeKey(m.Key)
	if i := strings.IndexByte(key, ':'); i > 0 {
		key = key[:i]
	}
	return string(m.Type) + "/" + key
}

// summarize renders a deterministic one-line summary of a cluster. The
// phrasing depends on the memory type; values appear oldest first.
func summarize(person string, cluster []store.StoredMemory) string {
	values := make([]string, 0, len(cluster))
	seen := make(map[string]struct{}, len(cluster))
	for _, m := range cluster {
		v := strings.TrimSpace(m.Value)
		if _, dup := seen[v]; dup || v == "" {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	joined := strings.Join(values, ", ")

	switch cluster[0].Type {
	case policy.TypePreference:
		prefix := "mag"
		if strings.HasPrefix(store.NormalizeKey(cluster[0].Key), "hasst") {
			prefix = "hasst"
		}
		return fmt.Sprintf("%s %s: %s", person, prefix, joined)
	case policy.TypeTaskHint:
		return fmt.Sprintf("offene punkte für %s: %s", person, joined)
	case policy.TypeContact:
		return fmt.Sprintf("kontakt-notizen für %s: %s", person, joined)
	default:
		return fmt.Sprintf("%s, %s: %s", person, store.NormalizeKey(cluster[0].Key), joined)
	}
}
