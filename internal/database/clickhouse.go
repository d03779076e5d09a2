package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"audio-relay/internal/chunker"
	"audio-relay/internal/models"
)

const insertCyclesSQL = `
	INSERT INTO stream_cycles (timestamp, device_id, frame_seq, declared_samples, captured_samples,
		chunks_sent, chunks_total, aborted, outcome, rms, volume_db, peak, is_clipping, is_silent, duration_ms)
`

type ClickHouseDB struct {
	conn driver.Conn
}

// ClickHouseConfig holds connection settings for the report sink
type ClickHouseConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", cfg.Addr)

	db := &ClickHouseDB{conn: conn}
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SaveCycles inserts a batch of cycle reports in one round trip
func (db *ClickHouseDB) SaveCycles(ctx context.Context, reports []models.CycleReport) error {
	if len(reports) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, insertCyclesSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare cycle batch: %w", err)
	}

	for i := range reports {
		if err := batch.Append(cycleRow(&reports[i])...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append cycle %d: %w", reports[i].FrameSeq, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert %d cycle reports: %w", len(reports), err)
	}
	return nil
}

// SaveLinkEvent records one connectivity recovery attempt
func (db *ClickHouseDB) SaveLinkEvent(ctx context.Context, event models.LinkEvent) error {
	query := `
		INSERT INTO link_events (timestamp, device_id, layer, recovered, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		event.Timestamp,
		event.DeviceID,
		event.Layer,
		event.Recovered,
		event.Error,
		float64(event.Duration)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to insert link event: %w", err)
	}
	return nil
}

// cycleRow maps a report onto the stream_cycles column order
func cycleRow(r *models.CycleReport) []any {
	return []any{
		r.Timestamp,
		r.DeviceID,
		r.FrameSeq,
		uint32(r.Declared),
		uint32(r.Captured),
		chunkCount(r.Send.ChunksSent),
		chunkCount(r.Send.ChunksTotal),
		r.Send.Aborted,
		string(r.Outcome),
		r.Level.RMS,
		r.Level.VolumeDB,
		r.Level.Peak,
		r.Level.IsClipping,
		r.Level.IsSilent,
		float64(r.Duration) / float64(time.Millisecond),
	}
}

// chunkCount fits n into the UInt16 chunk columns. The chunker never
// produces more than chunker.MaxChunks, so saturation only guards
// hand-built reports.
func chunkCount(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > chunker.MaxChunks:
		return chunker.MaxChunks
	}
	return uint16(n)
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
