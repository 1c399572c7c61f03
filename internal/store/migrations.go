package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// Calendar dates are TEXT 'YYYY-MM-DD' so they compare lexically and are
// never reinterpreted as timestamps by the driver.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS journals (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reference_tasks (
	id                       TEXT PRIMARY KEY,
	user_id                  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	journal_id               TEXT NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
	title                    TEXT NOT NULL,
	description              TEXT NOT NULL DEFAULT '',
	recurrence_type          TEXT NOT NULL
		CHECK(recurrence_type IN ('daily', 'weekly', 'monthly', 'yearly', 'custom')),
	recurrence_interval      INTEGER NOT NULL DEFAULT 1 CHECK(recurrence_interval >= 1),
	recurrence_days_of_week  TEXT NOT NULL DEFAULT '[]',
	recurrence_day_of_month  INTEGER CHECK(recurrence_day_of_month BETWEEN 1 AND 31),
	recurrence_week_of_month INTEGER CHECK(recurrence_week_of_month BETWEEN 1 AND 5),
	starts_on                TEXT NOT NULL,
	ends_on                  TEXT,
	is_active                INTEGER NOT NULL DEFAULT 1 CHECK(is_active IN (0, 1)),
	next_scheduled_date      TEXT,
	created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK(ends_on IS NULL OR ends_on >= starts_on),
	CHECK(recurrence_day_of_month IS NULL OR recurrence_week_of_month IS NULL)
);

CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	journal_id        TEXT NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	completed         INTEGER NOT NULL DEFAULT 0 CHECK(completed IN (0, 1)),
	completed_at      DATETIME,
	priority          TEXT NOT NULL,
	reference_task_id TEXT REFERENCES reference_tasks(id) ON DELETE SET NULL,
	recurrence_type   TEXT,
	scheduled_date    TEXT,
	parent_task_id    TEXT REFERENCES tasks(id) ON DELETE CASCADE,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK((completed = 1) = (completed_at IS NOT NULL))
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_reference_scheduled
	ON tasks(reference_task_id, scheduled_date)
	WHERE scheduled_date IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_tasks_user_priority ON tasks(user_id, priority);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_journals_user ON journals(user_id);
CREATE INDEX IF NOT EXISTS idx_reference_tasks_due
	ON reference_tasks(is_active, next_scheduled_date);
CREATE INDEX IF NOT EXISTS idx_reference_tasks_user ON reference_tasks(user_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
