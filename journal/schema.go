package journal

const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	fill_id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL NOT NULL,
	price REAL NOT NULL,
	lot REAL NOT NULL,
	pnl REAL NOT NULL,
	reason TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);

CREATE TABLE IF NOT EXISTS account (
	snapshot_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	value REAL NOT NULL,
	available REAL NOT NULL,
	note TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_account_time ON account(time);

CREATE TABLE IF NOT EXISTS lots (
	symbol TEXT NOT NULL,
	seq INTEGER NOT NULL,
	price REAL NOT NULL,
	qty REAL NOT NULL DEFAULT 1,
	PRIMARY KEY (symbol, seq)
);

CREATE TABLE IF NOT EXISTS sold (
	symbol TEXT PRIMARY KEY,
	exit_price REAL NOT NULL,
	exit_time DATETIME NOT NULL
);
`

// lotsQtyMigration adds lot quantities to databases created before lots
// carried one. Older rows were one unit each.
const lotsQtyMigration = `ALTER TABLE lots ADD COLUMN qty REAL NOT NULL DEFAULT 1`
