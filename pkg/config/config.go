// Package config defines the daemon's configuration model and providers.
package config

import "time"

// ConfigProvider abstracts configuration sources.
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
}

// ConfigData is the complete daemon configuration.
type ConfigData struct {
	Intersection IntersectionData `yaml:"intersection"`
	Signal       SignalData       `yaml:"signal"`
	Fusion       FusionData       `yaml:"fusion"`
	Feeds        []FeedData       `yaml:"feeds"`
	Archive      ArchiveData      `yaml:"archive,omitempty"`
	RESTServer   RESTServerData   `yaml:"rest,omitempty"`
}

// IntersectionData describes the single intersection this daemon governs.
type IntersectionData struct {
	Name         string  `yaml:"name"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters,omitempty"` // 0 disables the distance filter
}

// SignalData holds the signal cycle timings.
type SignalData struct {
	MinGreenSeconds      float64 `yaml:"min_green_seconds,omitempty"`
	YellowSeconds        float64 `yaml:"yellow_seconds,omitempty"`
	TickMillis           int     `yaml:"tick_millis,omitempty"`
	EmergencyHoldSeconds float64 `yaml:"emergency_hold_seconds,omitempty"` // 0 = overrides cleared only explicitly
}

func (s SignalData) MinGreen() time.Duration {
	return secondsOrDefault(s.MinGreenSeconds, 30*time.Second)
}

func (s SignalData) Yellow() time.Duration {
	return secondsOrDefault(s.YellowSeconds, 3*time.Second)
}

func (s SignalData) TickInterval() time.Duration {
	if s.TickMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(s.TickMillis) * time.Millisecond
}

func (s SignalData) EmergencyHold() time.Duration {
	return secondsOrDefault(s.EmergencyHoldSeconds, 0)
}

// FusionData holds the staleness and sweep settings for the record stores.
type FusionData struct {
	VehicleStaleSeconds float64 `yaml:"vehicle_stale_seconds,omitempty"`
	HazardTTLSeconds    float64 `yaml:"hazard_ttl_seconds,omitempty"`
	SweepSeconds        float64 `yaml:"sweep_seconds,omitempty"`
}

func (f FusionData) VehicleStaleness() time.Duration {
	return secondsOrDefault(f.VehicleStaleSeconds, 5*time.Second)
}

func (f FusionData) HazardTTL() time.Duration {
	return secondsOrDefault(f.HazardTTLSeconds, 10*time.Second)
}

func (f FusionData) SweepInterval() time.Duration {
	return secondsOrDefault(f.SweepSeconds, time.Second)
}

// FeedData configures one inbound feed adapter.
type FeedData struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // "fleet" or "broadcast"
	Enabled bool   `yaml:"enabled"`

	// Fleet feed: HTTP endpoint to poll.
	URL        string `yaml:"url,omitempty"`
	PollMillis int    `yaml:"poll_millis,omitempty"`

	// Broadcast feed: UDP listen address for CAM/DENM datagrams.
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// Broadcast feed: raw code mappings, merged over the built-in defaults.
	StationTypes map[int]string `yaml:"station_types,omitempty"`
	CauseCodes   map[int]string `yaml:"cause_codes,omitempty"`
}

func (f FeedData) PollInterval() time.Duration {
	if f.PollMillis <= 0 {
		return 400 * time.Millisecond
	}
	return time.Duration(f.PollMillis) * time.Millisecond
}

// ArchiveData configures optional snapshot history backends. All empty means
// no persistence; the engine is fully functional from live feeds alone.
type ArchiveData struct {
	TimescaleDB *TimescaleDBData `yaml:"timescaledb,omitempty"`
	SQLite      *SQLiteData      `yaml:"sqlite,omitempty"`
}

// TimescaleDBData configures the TimescaleDB snapshot archiver.
type TimescaleDBData struct {
	ConnectionString string `yaml:"connection_string"`
}

// SQLiteData configures the SQLite snapshot archiver.
type SQLiteData struct {
	Path string `yaml:"path"`
}

// RESTServerData configures the polled HTTP surface.
type RESTServerData struct {
	ListenAddr     string   `yaml:"listen_addr,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	SnapshotMillis int      `yaml:"snapshot_millis,omitempty"`
	CORSOrigins    []string `yaml:"cors_origins,omitempty"`
}

func (r RESTServerData) SnapshotInterval() time.Duration {
	if r.SnapshotMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(r.SnapshotMillis) * time.Millisecond
}

func secondsOrDefault(seconds float64, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}
