package pg

// schema is the relational layout the exchange core depends on. The orders
// table holds only resting orders; fills and cancels delete rows, so the
// table contents always mirror the in-memory books.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id       TEXT PRIMARY KEY,
    username      TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    cash_balance  NUMERIC(18,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
    user_id   TEXT NOT NULL REFERENCES users(user_id),
    player_id TEXT NOT NULL,
    quantity  BIGINT NOT NULL,
    avg_cost  NUMERIC(18,4) NOT NULL,
    PRIMARY KEY (user_id, player_id)
);

CREATE TABLE IF NOT EXISTS orders (
    order_id   BIGSERIAL PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(user_id),
    player_id  TEXT NOT NULL,
    side       TEXT NOT NULL,
    price      NUMERIC(18,2) NOT NULL,
    quantity   BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_player_created_idx ON orders(player_id, created_at);

CREATE TABLE IF NOT EXISTS trades (
    trade_id         BIGSERIAL PRIMARY KEY,
    player_id        TEXT NOT NULL,
    price            NUMERIC(18,2) NOT NULL,
    quantity         BIGINT NOT NULL,
    executed_at      TIMESTAMPTZ NOT NULL,
    taker_order_id   BIGINT NOT NULL,
    maker_order_id   BIGINT NOT NULL,
    taker_user_id    TEXT NOT NULL REFERENCES users(user_id),
    maker_user_id    TEXT NOT NULL REFERENCES users(user_id),
    taker_order_side TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS trades_player_executed_idx ON trades(player_id, executed_at);

CREATE TABLE IF NOT EXISTS player_price_history (
    player_id   TEXT NOT NULL,
    bucket      TIMESTAMPTZ NOT NULL,
    granularity TEXT NOT NULL,
    open_price  NUMERIC(18,2) NOT NULL,
    high_price  NUMERIC(18,2) NOT NULL,
    low_price   NUMERIC(18,2) NOT NULL,
    close_price NUMERIC(18,2) NOT NULL,
    volume      BIGINT NOT NULL,
    PRIMARY KEY (player_id, granularity, bucket)
);

CREATE TABLE IF NOT EXISTS portfolio_history (
    user_id     TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    recorded_at TIMESTAMPTZ NOT NULL,
    total_value NUMERIC(18,2) NOT NULL,
    PRIMARY KEY (user_id, recorded_at)
);
`
