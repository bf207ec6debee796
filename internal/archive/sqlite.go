package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/log"
	"github.com/jlaranjo/intersectd/internal/types"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS intersection_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time TIMESTAMP NOT NULL,
	sequence INTEGER NOT NULL,
	emergency_mode INTEGER NOT NULL,
	active_emergency_vehicle_id TEXT,
	signals TEXT NOT NULL,
	vehicles TEXT NOT NULL,
	hazards TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_time ON intersection_snapshots(time);
`

// SQLiteArchiver writes snapshot history to a local SQLite file. It suits
// single-host deployments where standing up TimescaleDB is overkill.
type SQLiteArchiver struct {
	db *sql.DB

	minInterval time.Duration
	lastWrite   time.Time
}

// NewSQLiteArchiver opens (or creates) the archive database.
func NewSQLiteArchiver(path string) (*SQLiteArchiver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging SQLite archive: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}
	return &SQLiteArchiver{db: db, minInterval: time.Second}, nil
}

// StartArchiver launches the insert worker and returns its intake channel.
func (s *SQLiteArchiver) StartArchiver(ctx context.Context, wg *sync.WaitGroup) chan<- *types.Snapshot {
	intake := make(chan *types.Snapshot, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				s.db.Close()
				log.Info("SQLite archiver stopped")
				return
			case snap := <-intake:
				if snap.GeneratedAt.Sub(s.lastWrite) < s.minInterval {
					continue
				}
				if err := s.insert(snap); err != nil {
					log.Errorf("SQLite archiver insert failed: %v", err)
					continue
				}
				s.lastWrite = snap.GeneratedAt
			}
		}
	}()

	return intake
}

func (s *SQLiteArchiver) insert(snap *types.Snapshot) error {
	signals, err := json.Marshal(snap.Signals)
	if err != nil {
		return err
	}
	vehicles, err := json.Marshal(snap.Vehicles)
	if err != nil {
		return err
	}
	hazards, err := json.Marshal(snap.Hazards)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO intersection_snapshots
		 (time, sequence, emergency_mode, active_emergency_vehicle_id, signals, vehicles, hazards)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.GeneratedAt, snap.Sequence, snap.EmergencyMode, snap.ActiveEmergencyVehicleID,
		string(signals), string(vehicles), string(hazards),
	)
	return err
}
