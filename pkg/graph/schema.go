package graph

const sqliteSchema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- One row per entity; (kind, node_key) is the entity's unique key.
CREATE TABLE IF NOT EXISTS graph_nodes (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    node_key TEXT NOT NULL,
    props TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (kind, node_key)
);

-- seq records discovery order.
CREATE TABLE IF NOT EXISTS graph_edges (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    src_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    rel TEXT NOT NULL,
    dst_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    props TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (src_id, rel, dst_id)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_dst ON graph_edges(dst_id, rel);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    node_key TEXT NOT NULL,
    props TEXT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (kind, node_key)
);

CREATE TABLE IF NOT EXISTS graph_edges (
    seq BIGSERIAL PRIMARY KEY,
    src_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    rel TEXT NOT NULL,
    dst_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
    props TEXT,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (src_id, rel, dst_id)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_dst ON graph_edges(dst_id, rel);
`
