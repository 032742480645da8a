package store

// sqliteSchema creates the feature store tables. Way boxes are precomputed at
// ingest so the first query phase never touches node rows.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	version INTEGER,
	timestamp TEXT,
	changeset INTEGER,
	uid INTEGER,
	user TEXT
);

CREATE TABLE IF NOT EXISTS node_tags (
	node_id INTEGER NOT NULL,
	k TEXT NOT NULL,
	v TEXT
);

CREATE TABLE IF NOT EXISTS ways (
	id INTEGER PRIMARY KEY,
	min_lat REAL NOT NULL,
	max_lat REAL NOT NULL,
	min_lon REAL NOT NULL,
	max_lon REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS way_nodes (
	way_id INTEGER NOT NULL,
	node_id INTEGER NOT NULL,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS way_tags (
	way_id INTEGER NOT NULL,
	k TEXT NOT NULL,
	v TEXT
);
`

// sqliteIndexes are created after bulk loading.
const sqliteIndexes = `
CREATE INDEX IF NOT EXISTS idx_nodes_lat_lon ON nodes(lat, lon);
CREATE INDEX IF NOT EXISTS idx_node_tags_node ON node_tags(node_id);
CREATE INDEX IF NOT EXISTS idx_ways_bbox ON ways(min_lat, max_lat, min_lon, max_lon);
CREATE INDEX IF NOT EXISTS idx_way_nodes_way ON way_nodes(way_id, seq);
CREATE INDEX IF NOT EXISTS idx_way_tags_way ON way_tags(way_id);
`

// PostgresSchema is the equivalent DDL for the PostgreSQL backend. It is
// applied by the operator (or tests); the reader never alters the database.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id BIGINT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	version INTEGER,
	timestamp TEXT,
	changeset BIGINT,
	uid BIGINT,
	"user" TEXT
);

CREATE TABLE IF NOT EXISTS node_tags (
	node_id BIGINT NOT NULL,
	k TEXT NOT NULL,
	v TEXT
);

CREATE TABLE IF NOT EXISTS ways (
	id BIGINT PRIMARY KEY,
	min_lat DOUBLE PRECISION NOT NULL,
	max_lat DOUBLE PRECISION NOT NULL,
	min_lon DOUBLE PRECISION NOT NULL,
	max_lon DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS way_nodes (
	way_id BIGINT NOT NULL,
	node_id BIGINT NOT NULL,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS way_tags (
	way_id BIGINT NOT NULL,
	k TEXT NOT NULL,
	v TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_lat_lon ON nodes(lat, lon);
CREATE INDEX IF NOT EXISTS idx_node_tags_node ON node_tags(node_id);
CREATE INDEX IF NOT EXISTS idx_ways_bbox ON ways(min_lat, max_lat, min_lon, max_lon);
CREATE INDEX IF NOT EXISTS idx_way_nodes_way ON way_nodes(way_id, seq);
CREATE INDEX IF NOT EXISTS idx_way_tags_way ON way_tags(way_id);
`
