package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jlaranjo/intersectd/internal/log"
	"github.com/jlaranjo/intersectd/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SnapshotRow is the TimescaleDB representation of one archived snapshot.
// The record lists are stored as JSONB: the archive is for replay and
// dashboard history, not relational queries over individual vehicles.
type SnapshotRow struct {
	ID                       uint      `gorm:"primaryKey"`
	Time                     time.Time `gorm:"index,not null"`
	Sequence                 uint64    `gorm:"not null"`
	EmergencyMode            bool
	ActiveEmergencyVehicleID string
	Signals                  pgtype.JSONB `gorm:"type:jsonb;default:'[]';not null"`
	Vehicles                 pgtype.JSONB `gorm:"type:jsonb;default:'[]';not null"`
	Hazards                  pgtype.JSONB `gorm:"type:jsonb;default:'[]';not null"`
}

// TableName implements the GORM Tabler interface.
func (SnapshotRow) TableName() string {
	return "intersection_snapshots"
}

// TimescaleDBArchiver writes snapshot history to TimescaleDB.
type TimescaleDBArchiver struct {
	db *gorm.DB

	// minInterval throttles inserts; the publisher cadence is sub-second and
	// row-per-build would be nothing but bloat.
	minInterval time.Duration
	lastWrite   time.Time
}

// NewTimescaleDBArchiver connects to TimescaleDB and migrates the snapshot
// table.
func NewTimescaleDBArchiver(connectionString string) (*TimescaleDBArchiver, error) {
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to TimescaleDB: %w", err)
	}
	if err := db.AutoMigrate(&SnapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrating snapshot table: %w", err)
	}
	return &TimescaleDBArchiver{db: db, minInterval: time.Second}, nil
}

// StartArchiver launches the insert worker and returns its intake channel.
func (t *TimescaleDBArchiver) StartArchiver(ctx context.Context, wg *sync.WaitGroup) chan<- *types.Snapshot {
	intake := make(chan *types.Snapshot, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				log.Info("TimescaleDB archiver stopped")
				return
			case snap := <-intake:
				if snap.GeneratedAt.Sub(t.lastWrite) < t.minInterval {
					continue
				}
				if err := t.insert(snap); err != nil {
					log.Errorf("TimescaleDB archiver insert failed: %v", err)
					continue
				}
				t.lastWrite = snap.GeneratedAt
			}
		}
	}()

	return intake
}

func (t *TimescaleDBArchiver) insert(snap *types.Snapshot) error {
	row := SnapshotRow{
		Time:                     snap.GeneratedAt,
		Sequence:                 snap.Sequence,
		EmergencyMode:            snap.EmergencyMode,
		ActiveEmergencyVehicleID: snap.ActiveEmergencyVehicleID,
	}
	if err := row.Signals.Set(snap.Signals); err != nil {
		return err
	}
	if err := row.Vehicles.Set(snap.Vehicles); err != nil {
		return err
	}
	if err := row.Hazards.Set(snap.Hazards); err != nil {
		return err
	}
	return t.db.Create(&row).Error
}
