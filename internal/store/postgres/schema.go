package postgres

import (
	"context"
	"fmt"
)

// schemaDDL creates the snapshot schema. Every natural key named in the
// entity model is backed by a unique constraint; concurrent inserts of the
// same discovery race on these and the loser receives a 23505.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS degrees (
	id           BIGINT PRIMARY KEY,
	portal_code  TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
	id     BIGSERIAL PRIMARY KEY,
	part   INT NOT NULL,
	parts  INT NOT NULL,
	letter TEXT NOT NULL,
	UNIQUE (part, parts)
);

CREATE TABLE IF NOT EXISTS turn_types (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL,
	abbreviation TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS institutions (
	id           BIGINT PRIMARY KEY,
	name         TEXT NOT NULL,
	abbreviation TEXT NOT NULL DEFAULT '',
	first_year   INT NOT NULL DEFAULT 0,
	last_year    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS departments (
	id             BIGINT PRIMARY KEY,
	name           TEXT NOT NULL,
	institution_id BIGINT NOT NULL REFERENCES institutions(id),
	first_year     INT NOT NULL DEFAULT 0,
	last_year      INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS classes (
	id            BIGINT PRIMARY KEY,
	department_id BIGINT NOT NULL REFERENCES departments(id),
	name          TEXT NOT NULL DEFAULT '',
	abbreviation  TEXT NOT NULL DEFAULT '',
	ects          INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS class_instances (
	id        BIGSERIAL PRIMARY KEY,
	class_id  BIGINT NOT NULL REFERENCES classes(id),
	period_id BIGINT NOT NULL REFERENCES periods(id),
	year      INT NOT NULL,
	info      JSONB,
	UNIQUE (class_id, year, period_id)
);

CREATE TABLE IF NOT EXISTS courses (
	id             BIGINT PRIMARY KEY,
	name           TEXT NOT NULL,
	abbreviation   TEXT NOT NULL DEFAULT '',
	degree_id      BIGINT REFERENCES degrees(id),
	institution_id BIGINT REFERENCES institutions(id),
	first_year     INT NOT NULL DEFAULT 0,
	last_year      INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS courses_abbreviation_idx ON courses (abbreviation);

CREATE TABLE IF NOT EXISTS teachers (
	id         BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	first_year INT NOT NULL DEFAULT 0,
	last_year  INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS teacher_departments (
	teacher_id    BIGINT NOT NULL REFERENCES teachers(id),
	department_id BIGINT NOT NULL REFERENCES departments(id),
	PRIMARY KEY (teacher_id, department_id)
);

CREATE TABLE IF NOT EXISTS students (
	id             BIGSERIAL PRIMARY KEY,
	portal_id      BIGINT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	abbreviation   TEXT,
	course_id      BIGINT REFERENCES courses(id),
	institution_id BIGINT REFERENCES institutions(id),
	first_year     INT NOT NULL DEFAULT 0,
	last_year      INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS students_portal_id_idx ON students (portal_id);
CREATE UNIQUE INDEX IF NOT EXISTS students_abbreviation_key
	ON students (abbreviation) WHERE abbreviation IS NOT NULL;

CREATE TABLE IF NOT EXISTS admissions (
	id         BIGSERIAL PRIMARY KEY,
	student_id BIGINT REFERENCES students(id),
	name       TEXT NOT NULL,
	course_id  BIGINT REFERENCES courses(id),
	phase      INT NOT NULL,
	year       INT NOT NULL,
	option     INT NOT NULL DEFAULT 0,
	state      TEXT NOT NULL DEFAULT '',
	check_date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	id                BIGSERIAL PRIMARY KEY,
	student_id        BIGINT NOT NULL REFERENCES students(id),
	class_instance_id BIGINT NOT NULL REFERENCES class_instances(id),
	attempt           INT NOT NULL DEFAULT 0,
	student_year      INT NOT NULL DEFAULT 0,
	statutes          TEXT NOT NULL DEFAULT '',
	observation       TEXT NOT NULL DEFAULT '',
	UNIQUE (student_id, class_instance_id)
);

CREATE TABLE IF NOT EXISTS buildings (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	first_year INT NOT NULL DEFAULT 0,
	last_year  INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rooms (
	id          BIGSERIAL PRIMARY KEY,
	building_id BIGINT NOT NULL REFERENCES buildings(id),
	name        TEXT NOT NULL,
	room_type   INT NOT NULL,
	UNIQUE (building_id, name, room_type)
);

CREATE TABLE IF NOT EXISTS turns (
	id                BIGSERIAL PRIMARY KEY,
	class_instance_id BIGINT NOT NULL REFERENCES class_instances(id),
	number            INT NOT NULL,
	type_id           BIGINT NOT NULL REFERENCES turn_types(id),
	enrolled          INT NOT NULL DEFAULT 0,
	capacity          INT NOT NULL DEFAULT 0,
	minutes           INT NOT NULL DEFAULT 0,
	routes            TEXT NOT NULL DEFAULT '',
	restrictions      TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	UNIQUE (class_instance_id, number, type_id)
);

CREATE TABLE IF NOT EXISTS turn_teachers (
	turn_id    BIGINT NOT NULL REFERENCES turns(id),
	teacher_id BIGINT NOT NULL REFERENCES teachers(id),
	PRIMARY KEY (turn_id, teacher_id)
);

CREATE TABLE IF NOT EXISTS turn_students (
	turn_id    BIGINT NOT NULL REFERENCES turns(id),
	student_id BIGINT NOT NULL REFERENCES students(id),
	PRIMARY KEY (turn_id, student_id)
);

CREATE TABLE IF NOT EXISTS turn_instances (
	id      BIGSERIAL PRIMARY KEY,
	turn_id BIGINT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
	start   INT NOT NULL,
	finish  INT NOT NULL,
	weekday INT NOT NULL,
	room_id BIGINT REFERENCES rooms(id),
	UNIQUE (turn_id, start, weekday)
);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id          UUID PRIMARY KEY,
	phase       TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error_text  TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates any missing tables and indexes. It is idempotent and
// runs at startup before the first crawl phase.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
