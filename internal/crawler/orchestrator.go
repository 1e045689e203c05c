package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/metrics"
	"github.com/opencampus/portal-crawler/internal/parser"
	"github.com/opencampus/portal-crawler/internal/queue"
	"github.com/opencampus/portal-crawler/internal/reconcile"
	"github.com/opencampus/portal-crawler/internal/session"
	"github.com/opencampus/portal-crawler/internal/store"
	"github.com/opencampus/portal-crawler/internal/worker"
)

// Classify maps a task error to a retry decision. Usage mistakes and
// rejected credentials never get better; everything else, including data
// conflicts and insert races, re-enters the retry loop and is bounded by
// the failure ceiling.
func Classify(err error) worker.Outcome {
	if err == nil {
		return worker.Succeeded
	}
	var usageErr *reconcile.UsageError
	if errors.As(err, &usageErr) {
		return worker.Abort
	}
	if errors.Is(err, session.ErrAuthenticationFailed) {
		return worker.Abort
	}
	return worker.Retry
}

// Config controls a crawl run.
type Config struct {
	// Workers is the pool size per phase; zero means 6.
	Workers int
	// CacheLookups gives each controller an in-memory identity mirror
	// instead of querying the store on every lookup.
	CacheLookups bool
	// DestructiveTurnSync replaces turn schedules wholesale instead of
	// diffing slot by slot.
	DestructiveTurnSync bool
	// FirstYear optionally clips the crawl to years >= FirstYear.
	FirstYear int
	// Poll is the pool's queue-drain polling interval; zero means 5s.
	Poll time.Duration
}

// Orchestrator runs the crawl phases in dependency order: the hierarchy
// first, then per-department pools, then per-course and per-occurrence
// pools. Each phase gets a crawl-run row in the store.
type Orchestrator struct {
	st    store.Store
	fetch Fetcher
	urls  *URLs
	cfg   Config
	log   *zap.Logger

	years []int
}

// NewOrchestrator wires a crawl over the given store and fetcher.
func NewOrchestrator(st store.Store, fetch Fetcher, urls *URLs, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{st: st, fetch: fetch, urls: urls, cfg: cfg, log: log}
}

func (o *Orchestrator) controller(ctx context.Context) (*reconcile.Controller, error) {
	var lookup reconcile.Lookup
	if o.cfg.CacheLookups {
		cached, err := reconcile.NewCached(ctx, o.st)
		if err != nil {
			return nil, fmt.Errorf("build lookup cache: %w", err)
		}
		lookup = cached
	} else {
		lookup = reconcile.NewDirect(o.st)
	}
	return reconcile.New(o.st, lookup, o.log), nil
}

// Run executes the whole pipeline. Phases that pool workers tolerate
// worker-local failures; the error returned aggregates whatever the pools
// could not finish.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.phase(ctx, "bootstrap", o.bootstrap); err != nil {
		return err
	}

	departments, err := o.st.Departments(ctx)
	if err != nil {
		return fmt.Errorf("list departments: %w", err)
	}
	if err := o.phase(ctx, "teachers", func(ctx context.Context) error {
		return runPool(ctx, o, "teachers", departments, (*Crawler).Teachers)
	}); err != nil {
		return err
	}
	if err := o.phase(ctx, "classes", func(ctx context.Context) error {
		return runPool(ctx, o, "classes", departments, (*Crawler).Classes)
	}); err != nil {
		return err
	}

	courses, err := o.st.Courses(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	if err := o.phase(ctx, "admissions", func(ctx context.Context) error {
		return runPool(ctx, o, "admissions", courses, (*Crawler).Admissions)
	}); err != nil {
		return err
	}

	targets, err := o.classInstanceTargets(ctx)
	if err != nil {
		return err
	}
	if err := o.phase(ctx, "enrollments", func(ctx context.Context) error {
		return runPool(ctx, o, "enrollments", targets, (*Crawler).Enrollments)
	}); err != nil {
		return err
	}
	return o.phase(ctx, "turns", func(ctx context.Context) error {
		return runPool(ctx, o, "turns", targets, (*Crawler).Turns)
	})
}

// phase brackets one pipeline stage with crawl-run bookkeeping.
func (o *Orchestrator) phase(ctx context.Context, name string, run func(context.Context) error) error {
	id := uuid.NewString()
	started := time.Now()
	if err := o.st.StartCrawlRun(ctx, store.CrawlRun{
		ID:        id,
		Phase:     name,
		StartedAt: started,
	}); err != nil {
		return fmt.Errorf("record %s start: %w", name, err)
	}
	o.log.Info("phase started", zap.String("phase", name), zap.String("run", id))

	err := run(ctx)
	metrics.ObservePhase(name, time.Since(started))
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if finishErr := o.st.FinishCrawlRun(ctx, id, time.Now(), errText); finishErr != nil {
		o.log.Warn("record phase finish failed", zap.String("phase", name), zap.Error(finishErr))
	}
	if err != nil {
		return fmt.Errorf("phase %s: %w", name, err)
	}
	o.log.Info("phase finished", zap.String("phase", name), zap.String("run", id))
	return nil
}

// bootstrap crawls everything that is cheap enough to do single-threaded
// and that later pools depend on: seeds, institutions, the year span,
// departments, the campus map and the course catalog.
func (o *Orchestrator) bootstrap(ctx context.Context) error {
	ctrl, err := o.controller(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Seed(ctx); err != nil {
		return fmt.Errorf("seed static collections: %w", err)
	}

	doc, err := o.fetch.Get(ctx, o.urls.Institutions())
	if err != nil {
		return fmt.Errorf("fetch institutions: %w", err)
	}
	o.years = parser.Years(doc)
	if o.cfg.FirstYear != 0 {
		clipped := o.years[:0]
		for _, y := range o.years {
			if y >= o.cfg.FirstYear {
				clipped = append(clipped, y)
			}
		}
		o.years = clipped
	}
	if len(o.years) == 0 {
		return errors.New("bootstrap: portal lists no academic years")
	}

	var institutions []catalog.Institution
	for _, row := range parser.Institutions(doc) {
		cand := candidate.Institution{ID: row.ID, Name: row.Name, Abbreviation: row.Abbreviation}
		cand.AddYear(o.years[0])
		cand.AddYear(o.years[len(o.years)-1])
		inst, err := ctrl.AddInstitution(ctx, cand)
		if err != nil {
			return fmt.Errorf("institution %d: %w", row.ID, err)
		}
		institutions = append(institutions, inst)
	}
	o.log.Info("hierarchy discovered",
		zap.Int("institutions", len(institutions)),
		zap.Ints("years", o.years))

	for _, inst := range institutions {
		for _, year := range o.years {
			deptDoc, err := o.fetch.Get(ctx, o.urls.Departments(inst.ID, year))
			if err != nil {
				return fmt.Errorf("fetch departments of %s year %d: %w", inst, year, err)
			}
			for _, row := range parser.Departments(deptDoc) {
				cand := candidate.Department{ID: row.ID, Name: row.Name, InstitutionID: inst.ID}
				cand.AddYear(year)
				if _, err := ctrl.AddDepartment(ctx, cand); err != nil {
					return fmt.Errorf("department %d: %w", row.ID, err)
				}
			}
		}
	}

	single := NewCrawler(o.fetch, o.urls, ctrl, o.years, o.cfg.DestructiveTurnSync, o.log)
	for _, year := range o.years {
		if err := single.Rooms(ctx, year); err != nil {
			return err
		}
	}
	for _, inst := range institutions {
		if err := single.Courses(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

// classInstanceTargets joins stored class instances with their period
// letters and owning institutions for the enrollment and turn phases.
func (o *Orchestrator) classInstanceTargets(ctx context.Context) ([]ClassInstanceTarget, error) {
	periods, err := o.st.Periods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	letters := make(map[int64]string, len(periods))
	for _, p := range periods {
		letters[p.ID] = p.Letter
	}

	classes, err := o.st.Classes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	departments, err := o.st.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	deptInstitution := make(map[int64]int64, len(departments))
	for _, d := range departments {
		deptInstitution[d.ID] = d.InstitutionID
	}
	classInstitution := make(map[int64]int64, len(classes))
	for _, cl := range classes {
		classInstitution[cl.ID] = deptInstitution[cl.DepartmentID]
	}

	instances, err := o.st.ClassInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list class instances: %w", err)
	}
	targets := make([]ClassInstanceTarget, 0, len(instances))
	for _, ci := range instances {
		targets = append(targets, ClassInstanceTarget{
			InstanceID:    ci.ID,
			ClassID:       ci.ClassID,
			Year:          ci.Year,
			PeriodLetter:  letters[ci.PeriodID],
			InstitutionID: classInstitution[ci.ClassID],
		})
	}
	return targets, nil
}

// runPool drains one phase's targets through a worker pool, building a
// fresh controller per worker so cached mirrors stay single-threaded.
func runPool[T any](ctx context.Context, o *Orchestrator, name string, targets []T, task func(*Crawler, context.Context, T) error) error {
	if len(targets) == 0 {
		return nil
	}
	q := queue.New(targets...)
	factory := func(id int) (worker.Task[T], error) {
		ctrl, err := o.controller(ctx)
		if err != nil {
			return nil, err
		}
		c := NewCrawler(o.fetch, o.urls, ctrl, o.years, o.cfg.DestructiveTurnSync, o.log.With(zap.Int("worker", id)))
		return func(ctx context.Context, target T) error {
			return task(c, ctx, target)
		}, nil
	}
	pool := worker.NewPool(q, factory, Classify, worker.Config{
		Name:    name,
		Workers: o.cfg.Workers,
		Poll:    o.cfg.Poll,
	}, o.log)
	return pool.Run(ctx)
}
