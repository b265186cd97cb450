package database

// schema 表结构，可重复执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id          TEXT PRIMARY KEY,
		school_id   TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		body        JSONB NOT NULL,
		approved    BOOLEAN NOT NULL DEFAULT FALSE,
		approved_at TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_school_approved ON schedules (school_id, approved)`,
	`CREATE TABLE IF NOT EXISTS absences (
		id            TEXT PRIMARY KEY,
		school_id     TEXT NOT NULL DEFAULT '',
		teacher_id    TEXT NOT NULL,
		date          DATE NOT NULL,
		periods       INTEGER[] NOT NULL,
		substitute_id TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_absences_school_date ON absences (school_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_absences_substitute ON absences (substitute_id)`,
}
