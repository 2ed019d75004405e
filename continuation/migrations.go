package continuation

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS continuations (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER,
	consumed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_continuations_expires_at ON continuations(expires_at);
`,
	},
}
