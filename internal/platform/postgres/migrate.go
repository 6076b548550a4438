package postgres

import "context"

// Balance lives on users as a cached projection of the transaction log;
// the two are only ever updated together inside one transaction.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id           BIGINT PRIMARY KEY,
	username          TEXT NOT NULL DEFAULT '',
	first_name        TEXT NOT NULL DEFAULT '',
	balance           NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	referrer_id       BIGINT,
	total_earned      NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_referred    INT NOT NULL DEFAULT 0,
	registration_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id              BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL REFERENCES users (user_id),
	type            TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT UNIQUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS deposits (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users (user_id),
	amount     NUMERIC(12,2) NOT NULL,
	currency   TEXT NOT NULL,
	invoice_id TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS withdrawals (
	id                   BIGSERIAL PRIMARY KEY,
	user_id              BIGINT NOT NULL REFERENCES users (user_id),
	amount               NUMERIC(12,2) NOT NULL,
	currency             TEXT NOT NULL,
	wallet_address       TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'pending',
	debit_transaction_id BIGINT UNIQUE REFERENCES transactions (id),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals (user_id, created_at DESC);
`

// Migrate creates the schema. Runs on start when DB_AUTO_MIGRATE is set.
func (c *Client) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}
