package db

var schema = []string{
	`CREATE TABLE IF NOT EXISTS intake_records (
		id               UUID PRIMARY KEY,
		content          TEXT NOT NULL,
		received_at      TIMESTAMPTZ NOT NULL,
		kind             TEXT,
		download_links   TEXT[] NOT NULL DEFAULT '{}',
		case_numbers     TEXT[] NOT NULL DEFAULT '{}',
		party_names      TEXT[] NOT NULL DEFAULT '{}',
		status           TEXT NOT NULL,
		error_message    TEXT,
		retry_count      INT NOT NULL DEFAULT 0,
		download_task_id TEXT,
		files            TEXT[] NOT NULL DEFAULT '{}',
		renamed_files    TEXT[] NOT NULL DEFAULT '{}',
		case_id          BIGINT,
		case_log_id      BIGINT,
		sent_at          TIMESTAMPTZ,
		notify_error     TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS intake_records_status_idx ON intake_records (status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS intake_records_task_idx ON intake_records (download_task_id)`,
	`CREATE TABLE IF NOT EXISTS cases (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'ACTIVE',
		case_type     TEXT NOT NULL DEFAULT 'CIVIL',
		current_stage TEXT NOT NULL DEFAULT 'FIRST_TRIAL',
		chat_id       BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS case_numbers (
		case_id BIGINT NOT NULL REFERENCES cases (id),
		number  TEXT NOT NULL,
		PRIMARY KEY (case_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS parties (
		id       BIGSERIAL PRIMARY KEY,
		name     TEXT NOT NULL UNIQUE,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS case_parties (
		case_id  BIGINT NOT NULL REFERENCES cases (id),
		party_id BIGINT NOT NULL REFERENCES parties (id),
		PRIMARY KEY (case_id, party_id)
	)`,
	`CREATE TABLE IF NOT EXISTS case_logs (
		id         BIGSERIAL PRIMARY KEY,
		case_id    BIGINT NOT NULL REFERENCES cases (id),
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS case_log_attachments (
		id         BIGSERIAL PRIMARY KEY,
		log_id     BIGINT NOT NULL REFERENCES case_logs (id),
		file_path  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS download_tasks (
		job_id     TEXT PRIMARY KEY,
		record_id  UUID NOT NULL,
		link       TEXT NOT NULL,
		outcome    TEXT NOT NULL DEFAULT 'pending',
		files      TEXT[] NOT NULL DEFAULT '{}',
		error      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}
