package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

// BuildingByName resolves a building by name.
func (s *Store) BuildingByName(ctx context.Context, name string) (catalog.Building, error) {
	var b catalog.Building
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, first_year, last_year FROM buildings WHERE name = $1`, name).
		Scan(&b.ID, &b.Name, &b.FirstYear, &b.LastYear)
	return b, wrapErr(fmt.Sprintf("select building %q", name), err)
}

// Buildings returns every building ordered by id.
func (s *Store) Buildings(ctx context.Context) ([]catalog.Building, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, first_year, last_year FROM buildings ORDER BY id`)
	if err != nil {
		return nil, wrapErr("select buildings", err)
	}
	defer rows.Close()
	var out []catalog.Building
	for rows.Next() {
		var b catalog.Building
		if err := rows.Scan(&b.ID, &b.Name, &b.FirstYear, &b.LastYear); err != nil {
			return nil, wrapErr("scan building", err)
		}
		out = append(out, b)
	}
	return out, wrapErr("select buildings", rows.Err())
}

// InsertBuilding stores a new building.
func (s *Store) InsertBuilding(ctx context.Context, b catalog.Building) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO buildings (name, first_year, last_year) VALUES ($1, $2, $3)`,
		b.Name, b.FirstYear, b.LastYear)
	return wrapErr(fmt.Sprintf("insert building %q", b.Name), err)
}

// UpdateBuilding overwrites an existing building.
func (s *Store) UpdateBuilding(ctx context.Context, b catalog.Building) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE buildings SET name = $2, first_year = $3, last_year = $4 WHERE id = $1`,
		b.ID, b.Name, b.FirstYear, b.LastYear)
	return wrapErr(fmt.Sprintf("update building %d", b.ID), err)
}

// RoomByKey resolves a room by its full natural key.
func (s *Store) RoomByKey(ctx context.Context, buildingID int64, name string, roomType catalog.RoomType) (catalog.Room, error) {
	var r catalog.Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, building_id, name, room_type
		 FROM rooms WHERE building_id = $1 AND name = $2 AND room_type = $3`,
		buildingID, name, int(roomType)).
		Scan(&r.ID, &r.BuildingID, &r.Name, &r.Type)
	return r, wrapErr(fmt.Sprintf("select room (%d, %q, %s)", buildingID, name, roomType), err)
}

// RoomsByName returns every room with the name inside the building.
func (s *Store) RoomsByName(ctx context.Context, buildingID int64, name string) ([]catalog.Room, error) {
	return s.selectRooms(ctx,
		`SELECT id, building_id, name, room_type
		 FROM rooms WHERE building_id = $1 AND name = $2 ORDER BY id`,
		buildingID, name)
}

// Rooms returns every room ordered by id.
func (s *Store) Rooms(ctx context.Context) ([]catalog.Room, error) {
	return s.selectRooms(ctx,
		`SELECT id, building_id, name, room_type FROM rooms ORDER BY id`)
}

func (s *Store) selectRooms(ctx context.Context, query string, args ...any) ([]catalog.Room, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("select rooms", err)
	}
	defer rows.Close()
	var out []catalog.Room
	for rows.Next() {
		var r catalog.Room
		if err := rows.Scan(&r.ID, &r.BuildingID, &r.Name, &r.Type); err != nil {
			return nil, wrapErr("scan room", err)
		}
		out = append(out, r)
	}
	return out, wrapErr("select rooms", rows.Err())
}

// InsertRoom stores a new room.
func (s *Store) InsertRoom(ctx context.Context, r catalog.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (building_id, name, room_type) VALUES ($1, $2, $3)`,
		r.BuildingID, r.Name, int(r.Type))
	return wrapErr(fmt.Sprintf("insert room (%d, %q, %s)", r.BuildingID, r.Name, r.Type), err)
}

// TurnByKey resolves a turn by its natural key, including teacher and
// student links.
func (s *Store) TurnByKey(ctx context.Context, classInstanceID int64, number int, typeID int64) (catalog.Turn, error) {
	var t catalog.Turn
	err := s.pool.QueryRow(ctx,
		`SELECT id, class_instance_id, number, type_id, enrolled, capacity,
		        minutes, routes, restrictions, state
		 FROM turns WHERE class_instance_id = $1 AND number = $2 AND type_id = $3`,
		classInstanceID, number, typeID).
		Scan(&t.ID, &t.ClassInstanceID, &t.Number, &t.TypeID, &t.Enrolled,
			&t.Capacity, &t.Minutes, &t.Routes, &t.Restrictions, &t.State)
	if err != nil {
		return catalog.Turn{}, wrapErr(fmt.Sprintf("select turn (%d, %d, %d)",
			classInstanceID, number, typeID), err)
	}
	t.TeacherIDs, err = s.linkedIDs(ctx, `SELECT teacher_id FROM turn_teachers WHERE turn_id = $1 ORDER BY teacher_id`, t.ID)
	if err != nil {
		return catalog.Turn{}, err
	}
	t.StudentIDs, err = s.linkedIDs(ctx, `SELECT student_id FROM turn_students WHERE turn_id = $1 ORDER BY student_id`, t.ID)
	if err != nil {
		return catalog.Turn{}, err
	}
	return t, nil
}

func (s *Store) linkedIDs(ctx context.Context, query string, turnID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, turnID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("select turn %d links", turnID), err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan turn link", err)
		}
		out = append(out, id)
	}
	return out, wrapErr(fmt.Sprintf("select turn %d links", turnID), rows.Err())
}

// InsertTurn stores a new turn, returning its id.
func (s *Store) InsertTurn(ctx context.Context, t catalog.Turn) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO turns (class_instance_id, number, type_id, enrolled, capacity,
		                    minutes, routes, restrictions, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		t.ClassInstanceID, t.Number, t.TypeID, t.Enrolled, t.Capacity,
		t.Minutes, t.Routes, t.Restrictions, t.State).Scan(&id)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("insert turn (%d, %d, %d)",
			t.ClassInstanceID, t.Number, t.TypeID), err)
	}
	return id, nil
}

// UpdateTurn overwrites an existing turn.
func (s *Store) UpdateTurn(ctx context.Context, t catalog.Turn) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE turns
		 SET enrolled = $2, capacity = $3, minutes = $4, routes = $5,
		     restrictions = $6, state = $7
		 WHERE id = $1`,
		t.ID, t.Enrolled, t.Capacity, t.Minutes, t.Routes, t.Restrictions, t.State)
	return wrapErr(fmt.Sprintf("update turn %d", t.ID), err)
}

// LinkTurnTeacher records the association; re-adding is a no-op.
func (s *Store) LinkTurnTeacher(ctx context.Context, turnID, teacherID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turn_teachers (turn_id, teacher_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, turnID, teacherID)
	return wrapErr(fmt.Sprintf("link turn %d teacher %d", turnID, teacherID), err)
}

// LinkTurnStudent records the association; re-adding is a no-op.
func (s *Store) LinkTurnStudent(ctx context.Context, turnID, studentID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turn_students (turn_id, student_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, turnID, studentID)
	return wrapErr(fmt.Sprintf("link turn %d student %d", turnID, studentID), err)
}

// TurnInstances returns the weekly slots of a turn ordered by weekday.
func (s *Store) TurnInstances(ctx context.Context, turnID int64) ([]catalog.TurnInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, turn_id, start, finish, weekday, room_id
		 FROM turn_instances WHERE turn_id = $1 ORDER BY weekday, start`, turnID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("select turn %d instances", turnID), err)
	}
	defer rows.Close()
	var out []catalog.TurnInstance
	for rows.Next() {
		var ti catalog.TurnInstance
		var weekday int
		if err := rows.Scan(&ti.ID, &ti.TurnID, &ti.Start, &ti.End,
			&weekday, &scanInt64{&ti.RoomID}); err != nil {
			return nil, wrapErr("scan turn instance", err)
		}
		ti.Weekday = time.Weekday(weekday)
		out = append(out, ti)
	}
	return out, wrapErr(fmt.Sprintf("select turn %d instances", turnID), rows.Err())
}

// InsertTurnInstance stores a new weekly slot.
func (s *Store) InsertTurnInstance(ctx context.Context, ti catalog.TurnInstance) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turn_instances (turn_id, start, finish, weekday, room_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		ti.TurnID, ti.Start, ti.End, int(ti.Weekday), nullInt64(ti.RoomID))
	return wrapErr(fmt.Sprintf("insert turn instance (%d, %d, %s)",
		ti.TurnID, ti.Start, ti.Weekday), err)
}

// UpdateTurnInstanceRoom moves a slot to another room.
func (s *Store) UpdateTurnInstanceRoom(ctx context.Context, id, roomID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE turn_instances SET room_id = $2 WHERE id = $1`,
		id, nullInt64(roomID))
	return wrapErr(fmt.Sprintf("update turn instance %d room", id), err)
}

// DeleteTurnInstance removes one slot.
func (s *Store) DeleteTurnInstance(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM turn_instances WHERE id = $1`, id)
	return wrapErr(fmt.Sprintf("delete turn instance %d", id), err)
}

// DeleteTurnInstances removes every slot of a turn, returning the count.
func (s *Store) DeleteTurnInstances(ctx context.Context, turnID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM turn_instances WHERE turn_id = $1`, turnID)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("delete turn %d instances", turnID), err)
	}
	return tag.RowsAffected(), nil
}
