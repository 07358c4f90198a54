package store

// migration is one forward-only schema step. Steps run in slice order;
// applying migration N requires migrations 0..N-1 to already be applied.
type migration struct {
	version int
	sql     string
}

// migrations is the linear schema evolution sequence (spec §4.1: "on open,
// the store applies any missing migration step in order; a failed migration
// aborts startup"). Never edit an applied migration's SQL — append a new one.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE identity (
	wallet_address  TEXT PRIMARY KEY,
	creator_address TEXT NOT NULL,
	genesis_prompt  TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE TABLE sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);
CREATE INDEX idx_sessions_open ON sessions(ended_at) WHERE ended_at IS NULL;

CREATE TABLE turns (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      INTEGER NOT NULL REFERENCES sessions(id),
	turn_index      INTEGER NOT NULL,
	tier            TEXT NOT NULL,
	model_id        TEXT NOT NULL,
	prompt_tokens   INTEGER NOT NULL DEFAULT 0,
	response_tokens INTEGER NOT NULL DEFAULT 0,
	credit_delta    REAL NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	error_text      TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	completed_at    INTEGER,
	UNIQUE(session_id, turn_index)
);
CREATE INDEX idx_turns_session ON turns(session_id, turn_index);

CREATE TABLE tool_calls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id     INTEGER NOT NULL REFERENCES turns(id),
	seq         INTEGER NOT NULL,
	tool_name   TEXT NOT NULL,
	input       TEXT NOT NULL DEFAULT '',
	output      TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	UNIQUE(turn_id, seq)
);
CREATE INDEX idx_tool_calls_turn ON tool_calls(turn_id, seq);

CREATE TABLE kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE model_registry (
	model_id         TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	minimum_tier     TEXT NOT NULL,
	cost_per_1k_in   REAL NOT NULL DEFAULT 0,
	cost_per_1k_out  REAL NOT NULL DEFAULT 0,
	max_output_token INTEGER NOT NULL DEFAULT 4096,
	context_window   INTEGER NOT NULL DEFAULT 0,
	supports_tools   INTEGER NOT NULL DEFAULT 1,
	supports_vision  INTEGER NOT NULL DEFAULT 0,
	param_style      TEXT NOT NULL DEFAULT 'max_tokens',
	enabled          INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX idx_registry_provider ON model_registry(provider, enabled);

CREATE TABLE children (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	address        TEXT NOT NULL,
	sandbox_id     TEXT NOT NULL,
	genesis_prompt TEXT NOT NULL,
	status         TEXT NOT NULL,
	parent_address TEXT NOT NULL,
	generation     INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL
);
CREATE INDEX idx_children_status ON children(status, created_at, id);

CREATE TABLE lifecycle_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	child_id   TEXT NOT NULL REFERENCES children(id),
	transition TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX idx_lifecycle_child ON lifecycle_events(child_id, id);
`,
	},
}
