package reconcile

import (
	"context"
	"fmt"

	"github.com/opencampus/portal-crawler/internal/candidate"
	"github.com/opencampus/portal-crawler/internal/catalog"
	"github.com/opencampus/portal-crawler/internal/store"
)

// AddBuilding creates or merges one building, keyed by name.
func (c *Controller) AddBuilding(ctx context.Context, cand candidate.Building) (catalog.Building, error) {
	existing, err := c.lookup.Building(ctx, cand.Name)
	if notFound(err) {
		ent := catalog.Building{Name: cand.Name, TemporalRange: cand.TemporalRange}
		if err := c.store.InsertBuilding(ctx, ent); err != nil {
			return catalog.Building{}, err
		}
		// The store assigned the id; read it back through the authoritative path.
		ent, err = c.store.BuildingByName(ctx, cand.Name)
		if err != nil {
			return catalog.Building{}, err
		}
		c.lookup.Note(ent)
		c.observe("building", true, false)
		return ent, nil
	}
	if err != nil {
		return catalog.Building{}, err
	}

	before := existing.TemporalRange
	existing.Merge(cand.TemporalRange)
	if existing.TemporalRange != before {
		if err := c.store.UpdateBuilding(ctx, existing); err != nil {
			return catalog.Building{}, err
		}
		c.lookup.Note(existing)
	}
	return existing, nil
}

// AddRoom creates one room if its (building, name, type) key is new.
func (c *Controller) AddRoom(ctx context.Context, cand candidate.Room) (catalog.Room, error) {
	existing, err := c.lookup.Room(ctx, cand.BuildingID, cand.Name, cand.Type)
	if err == nil {
		return existing, nil
	}
	if !notFound(err) {
		return catalog.Room{}, err
	}
	ent := catalog.Room{BuildingID: cand.BuildingID, Name: cand.Name, Type: cand.Type}
	if err := c.store.InsertRoom(ctx, ent); err != nil {
		return catalog.Room{}, err
	}
	ent, err = c.store.RoomByKey(ctx, cand.BuildingID, cand.Name, cand.Type)
	if err != nil {
		return catalog.Room{}, err
	}
	c.lookup.Note(ent)
	c.observe("room", true, false)
	return ent, nil
}

// Room resolves a room by (building, name, type). When the type is unknown
// (zero), the name must identify exactly one room within the building;
// anything else is a disambiguation failure, never an arbitrary pick.
func (c *Controller) Room(ctx context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error) {
	if roomType != 0 {
		return c.lookup.Room(ctx, buildingID, name, roomType)
	}
	rooms, err := c.lookup.RoomsByName(ctx, buildingID, name)
	if err != nil {
		return catalog.Room{}, err
	}
	switch len(rooms) {
	case 0:
		return catalog.Room{}, fmt.Errorf("room %q in building %d: %w",
			name, buildingID, store.ErrNotFound)
	case 1:
		return rooms[0], nil
	default:
		return catalog.Room{}, usage(
			"room %q in building %d matches %d room types, cannot disambiguate",
			name, buildingID, len(rooms))
	}
}

// AddTurn creates or merges one turn and records its teacher associations.
// Counters and state follow the newest candidate; a fresh page is always
// more current than the stored snapshot.
func (c *Controller) AddTurn(ctx context.Context, cand candidate.Turn) (catalog.Turn, error) {
	existing, err := c.lookup.Turn(ctx, cand.ClassInstanceID, cand.Number, cand.TypeID)
	if notFound(err) {
		ent := catalog.Turn{
			ClassInstanceID: cand.ClassInstanceID,
			Number:          cand.Number,
			TypeID:          cand.TypeID,
			Enrolled:        cand.Enrolled,
			Capacity:        cand.Capacity,
			Minutes:         cand.Minutes,
			Routes:          cand.Routes,
			Restrictions:    cand.Restrictions,
			State:           cand.State,
		}
		id, err := c.store.InsertTurn(ctx, ent)
		if err != nil {
			return catalog.Turn{}, err
		}
		ent.ID = id
		existing = ent
		c.observe("turn", true, false)
	} else if err != nil {
		return catalog.Turn{}, err
	} else {
		changed := false
		if cand.Enrolled != 0 && cand.Enrolled != existing.Enrolled {
			existing.Enrolled = cand.Enrolled
			changed = true
		}
		if cand.Capacity != 0 && cand.Capacity != existing.Capacity {
			existing.Capacity = cand.Capacity
			changed = true
		}
		if cand.Minutes != 0 && cand.Minutes != existing.Minutes {
			existing.Minutes = cand.Minutes
			changed = true
		}
		if cand.Routes != "" && cand.Routes != existing.Routes {
			existing.Routes = cand.Routes
			changed = true
		}
		if cand.Restrictions != "" && cand.Restrictions != existing.Restrictions {
			existing.Restrictions = cand.Restrictions
			changed = true
		}
		if cand.State != "" && cand.State != existing.State {
			existing.State = cand.State
			changed = true
		}
		if changed {
			if err := c.store.UpdateTurn(ctx, existing); err != nil {
				return catalog.Turn{}, err
			}
		}
		c.observe("turn", false, changed)
	}

	for _, teacherID := range cand.TeacherIDs {
		if err := c.store.LinkTurnTeacher(ctx, existing.ID, teacherID); err != nil {
			return catalog.Turn{}, err
		}
		known := false
		for _, id := range existing.TeacherIDs {
			if id == teacherID {
				known = true
				break
			}
		}
		if !known {
			existing.TeacherIDs = append(existing.TeacherIDs, teacherID)
		}
	}
	c.lookup.Note(existing)
	return existing, nil
}

// AddTurnStudent records that a student belongs to a turn; re-adding an
// existing association is a no-op.
func (c *Controller) AddTurnStudent(ctx context.Context, turnID, studentID int64) error {
	return c.store.LinkTurnStudent(ctx, turnID, studentID)
}

// AddTurnInstances reconciles the weekly slots of one turn. The default
// incremental policy matches existing slots against candidates by
// (start, end, weekday): matched slots keep their row (moving room when it
// changed), unmatched existing slots are deleted as stale, unmatched
// candidates are inserted. The destructive policy wipes the turn's slots and
// re-inserts the candidate set wholesale.
func (c *Controller) AddTurnInstances(ctx context.Context, turnID int64, cands []candidate.TurnInstance, destructive bool) (Stats, error) {
	var stats Stats
	for _, cand := range cands {
		if cand.TurnID != turnID {
			return stats, usage("turn instance batch for turn %d contains a slot for turn %d",
				turnID, cand.TurnID)
		}
	}

	if destructive {
		deleted, err := c.store.DeleteTurnInstances(ctx, turnID)
		if err != nil {
			return stats, err
		}
		stats.Deleted = int(deleted)
		for _, cand := range cands {
			if err := c.insertTurnInstance(ctx, cand); err != nil {
				return stats, err
			}
			stats.Added++
		}
		return stats, nil
	}

	existing, err := c.store.TurnInstances(ctx, turnID)
	if err != nil {
		return stats, err
	}

	type slotKey struct {
		start, end int
		weekday    int
	}
	remaining := make(map[slotKey]catalog.TurnInstance, len(existing))
	for _, ti := range existing {
		remaining[slotKey{ti.Start, ti.End, int(ti.Weekday)}] = ti
	}

	for _, cand := range cands {
		key := slotKey{cand.Start, cand.End, int(cand.Weekday)}
		ti, ok := remaining[key]
		if !ok {
			if err := c.insertTurnInstance(ctx, cand); err != nil {
				return stats, err
			}
			stats.Added++
			continue
		}
		delete(remaining, key)
		if ti.RoomID != cand.RoomID {
			if err := c.store.UpdateTurnInstanceRoom(ctx, ti.ID, cand.RoomID); err != nil {
				return stats, err
			}
			stats.Updated++
		} else {
			stats.Ignored++
		}
	}

	for _, stale := range remaining {
		if err := c.store.DeleteTurnInstance(ctx, stale.ID); err != nil {
			return stats, err
		}
		stats.Deleted++
	}
	return stats, nil
}

func (c *Controller) insertTurnInstance(ctx context.Context, cand candidate.TurnInstance) error {
	return c.store.InsertTurnInstance(ctx, catalog.TurnInstance{
		TurnID:  cand.TurnID,
		Start:   cand.Start,
		End:     cand.End,
		Weekday: cand.Weekday,
		RoomID:  cand.RoomID,
	})
}
