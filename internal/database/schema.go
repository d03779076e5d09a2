package database

// SQL schemas for the relay's ClickHouse tables

const (
	// StreamCyclesTableSQL creates the stream_cycles table, one row per pipeline cycle
	StreamCyclesTableSQL = `
		CREATE TABLE IF NOT EXISTS stream_cycles (
			timestamp DateTime64(3),
			device_id String,
			frame_seq UInt64,
			declared_samples UInt32,
			captured_samples UInt32,
			chunks_sent UInt16,
			chunks_total UInt16,
			aborted Bool,
			outcome LowCardinality(String),
			rms Float64,
			volume_db Float64,
			peak Int16,
			is_clipping Bool,
			is_silent Bool,
			duration_ms Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
		TTL toDateTime(timestamp) + INTERVAL 30 DAY
	`

	// LinkEventsTableSQL creates the link_events table for connectivity transitions
	LinkEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS link_events (
			timestamp DateTime64(3),
			device_id String,
			layer LowCardinality(String),
			recovered Bool,
			error String,
			duration_ms Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		StreamCyclesTableSQL,
		LinkEventsTableSQL,
	}
}
