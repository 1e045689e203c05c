package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
)

// The static collections the portal never enumerates on any page; they are
// implied by codes embedded in URLs and labels.
var (
	seedDegrees = []catalog.Degree{
		{ID: 1, PortalCode: "L", Name: "bachelor"},
		{ID: 2, PortalCode: "M", Name: "master"},
		{ID: 3, PortalCode: "MI", Name: "integrated master"},
		{ID: 4, PortalCode: "D", Name: "doctorate"},
		{ID: 5, PortalCode: "PG", Name: "postgraduate"},
	}

	seedPeriods = []catalog.Period{
		{Part: 1, Parts: 1, Letter: "a"},
		{Part: 1, Parts: 2, Letter: "s1"},
		{Part: 2, Parts: 2, Letter: "s2"},
		{Part: 1, Parts: 4, Letter: "t1"},
		{Part: 2, Parts: 4, Letter: "t2"},
		{Part: 3, Parts: 4, Letter: "t3"},
		{Part: 4, Parts: 4, Letter: "t4"},
	}

	seedTurnTypes = []catalog.TurnType{
		{Name: "theoretical", Abbreviation: "t"},
		{Name: "practical", Abbreviation: "p"},
		{Name: "theoretical-practical", Abbreviation: "tp"},
		{Name: "seminar", Abbreviation: "s"},
		{Name: "tutorial", Abbreviation: "ot"},
	}
)

// Seed inserts the static collections when their tables are empty, then
// folds the stored rows (with their assigned ids) into the lookup. Racing
// seeders are harmless: the loser's duplicate inserts are swallowed, since
// the rows it wanted are there.
func (c *Controller) Seed(ctx context.Context) error {
	degrees, err := c.store.Degrees(ctx)
	if err != nil {
		return fmt.Errorf("seed degrees: %w", err)
	}
	if len(degrees) == 0 {
		for _, d := range seedDegrees {
			if err := c.store.InsertDegree(ctx, d); err != nil && !isDuplicate(err) {
				return fmt.Errorf("seed degrees: %w", err)
			}
		}
		if degrees, err = c.store.Degrees(ctx); err != nil {
			return fmt.Errorf("seed degrees: %w", err)
		}
		for _, d := range degrees {
			c.lookup.Note(d)
		}
	}

	periods, err := c.store.Periods(ctx)
	if err != nil {
		return fmt.Errorf("seed periods: %w", err)
	}
	if len(periods) == 0 {
		for _, p := range seedPeriods {
			if err := c.store.InsertPeriod(ctx, p); err != nil && !isDuplicate(err) {
				return fmt.Errorf("seed periods: %w", err)
			}
		}
		if periods, err = c.store.Periods(ctx); err != nil {
			return fmt.Errorf("seed periods: %w", err)
		}
		for _, p := range periods {
			c.lookup.Note(p)
		}
	}

	turnTypes, err := c.store.TurnTypes(ctx)
	if err != nil {
		return fmt.Errorf("seed turn types: %w", err)
	}
	if len(turnTypes) == 0 {
		for _, t := range seedTurnTypes {
			if err := c.store.InsertTurnType(ctx, t); err != nil && !isDuplicate(err) {
				return fmt.Errorf("seed turn types: %w", err)
			}
		}
		if turnTypes, err = c.store.TurnTypes(ctx); err != nil {
			return fmt.Errorf("seed turn types: %w", err)
		}
		for _, t := range turnTypes {
			c.lookup.Note(t)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicate)
}

// DegreeByCode resolves a degree by the portal's URL code.
func (c *Controller) DegreeByCode(ctx context.Context, code string) (catalog.Degree, error) {
	degrees, err := c.lookup.Degrees(ctx)
	if err != nil {
		return catalog.Degree{}, err
	}
	for _, d := range degrees {
		if d.PortalCode == code {
			return d, nil
		}
	}
	return catalog.Degree{}, fmt.Errorf("degree %q: %w", code, store.ErrNotFound)
}

// PeriodByLetter resolves a period by the portal's period letter.
func (c *Controller) PeriodByLetter(ctx context.Context, letter string) (catalog.Period, error) {
	periods, err := c.lookup.Periods(ctx)
	if err != nil {
		return catalog.Period{}, err
	}
	for _, p := range periods {
		if p.Letter == letter {
			return p, nil
		}
	}
	return catalog.Period{}, fmt.Errorf("period %q: %w", letter, store.ErrNotFound)
}

// TurnTypeByAbbreviation resolves a turn type by its portal abbreviation.
func (c *Controller) TurnTypeByAbbreviation(ctx context.Context, abbreviation string) (catalog.TurnType, error) {
	turnTypes, err := c.lookup.TurnTypes(ctx)
	if err != nil {
		return catalog.TurnType{}, err
	}
	for _, t := range turnTypes {
		if t.Abbreviation == abbreviation {
			return t, nil
		}
	}
	return catalog.TurnType{}, fmt.Errorf("turn type %q: %w", abbreviation, store.ErrNotFound)
}
