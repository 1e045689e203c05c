package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opencampus/portal-crawler/internal/store"
)

var countedTables = []string{
	"institutions", "departments", "classes", "class_instances", "courses",
	"teachers", "students", "admissions", "enrollments", "buildings",
	"rooms", "turns", "turn_instances",
}

// EntityCounts reports row counts per collection for the progress endpoint.
func (s *Store) EntityCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var n int64
		// Table names come from the fixed list above, never from input.
		err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("count %s", table), err)
		}
		out[table] = n
	}
	return out, nil
}

// StartCrawlRun records the start of a crawl phase.
func (s *Store) StartCrawlRun(ctx context.Context, run store.CrawlRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_runs (id, phase, started_at) VALUES ($1, $2, $3)`,
		run.ID, run.Phase, run.StartedAt)
	return wrapErr(fmt.Sprintf("insert crawl run %s", run.ID), err)
}

// FinishCrawlRun closes a crawl-phase record.
func (s *Store) FinishCrawlRun(ctx context.Context, id string, finishedAt time.Time, errText string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE crawl_runs SET finished_at = $2, error_text = $3 WHERE id = $1`,
		id, finishedAt, errText)
	return wrapErr(fmt.Sprintf("finish crawl run %s", id), err)
}
