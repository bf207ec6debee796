package broadcast

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/geo"
)

// The broadcast feed carries two message families on one datagram socket:
// periodic awareness announcements (CAM-style) and event/hazard announcements
// (DENM-style). Events arrive either flat or in the nested DENM envelope the
// onboard units emit; both normalize to the same internal form.

// datagram is the superset of both families; dispatch looks at which fields
// are present.
type datagram struct {
	// periodic awareness
	StationID   *int64   `json:"stationID"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Heading     *float64 `json:"heading"`
	Speed       *float64 `json:"speed"`
	StationType *int     `json:"stationType"`

	// flat event form
	EventID     string `json:"eventID,omitempty"`
	EventType   *int   `json:"eventType,omitempty"`
	Description string `json:"description,omitempty"`

	// nested DENM envelope
	Header     *denmHeader     `json:"header,omitempty"`
	Management *denmManagement `json:"management,omitempty"`
	Situation  *denmSituation  `json:"situation,omitempty"`
	Location   *denmLocation   `json:"location,omitempty"`
}

type denmHeader struct {
	MessageID int   `json:"messageID"`
	StationID int64 `json:"stationID"`
}

type denmManagement struct {
	ActionID *struct {
		OriginatingStationID int64 `json:"originatingStationID"`
		SequenceNumber       int   `json:"sequenceNumber"`
	} `json:"actionID,omitempty"`
	EventPosition *denmPosition `json:"eventPosition,omitempty"`
	StationType   int           `json:"stationType,omitempty"`
}

type denmSituation struct {
	EventType *struct {
		CauseCode    int `json:"causeCode"`
		SubCauseCode int `json:"subCauseCode"`
	} `json:"eventType,omitempty"`
	Description string `json:"description,omitempty"`
}

type denmLocation struct {
	EventPosition        *denmPosition `json:"eventPosition,omitempty"`
	EventPositionHeading float64       `json:"eventPositionHeading,omitempty"`
}

type denmPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// degrees converts a DENM position to decimal degrees. Some units encode
// positions as 1e-7-degree integers while others send plain degrees; a
// latitude beyond the valid range marks the scaled form.
func (p denmPosition) degrees() (lat, lng float64) {
	lat, lng = p.Latitude, p.Longitude
	if math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		lat /= 1e7
		lng /= 1e7
	}
	return lat, lng
}

// awareness is the normalized periodic-awareness message.
type awareness struct {
	stationID string
	lat, lng  float64
	heading   float64
	speed     float64
	kind      types.VehicleKind
}

// event is the normalized event/hazard message.
type event struct {
	id          string
	lat, lng    float64
	causeCode   int
	description string
	heading     float64
	stationID   string
}

// parseDatagram decodes one broadcast datagram and classifies it. Exactly one
// of the returns is non-nil on success.
func parseDatagram(data []byte, stationTypes map[int]types.VehicleKind) (*awareness, *event, error) {
	var d datagram
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil, fmt.Errorf("undecodable datagram: %w", types.ErrMalformedInput)
	}

	if d.Management != nil || d.Situation != nil || d.EventID != "" || d.EventType != nil {
		ev, err := normalizeEvent(d)
		return nil, ev, err
	}
	aw, err := normalizeAwareness(d, stationTypes)
	return aw, nil, err
}

func normalizeAwareness(d datagram, stationTypes map[int]types.VehicleKind) (*awareness, error) {
	if d.StationID == nil {
		return nil, fmt.Errorf("missing stationID: %w", types.ErrMalformedInput)
	}
	if d.Latitude == nil || d.Longitude == nil || !geo.ValidCoordinates(*d.Latitude, *d.Longitude) {
		return nil, fmt.Errorf("missing or invalid position: %w", types.ErrMalformedInput)
	}
	if d.Heading == nil && d.Speed == nil {
		return nil, fmt.Errorf("need at least one of heading/speed: %w", types.ErrMalformedInput)
	}
	if d.Speed != nil && *d.Speed < 0 {
		return nil, fmt.Errorf("negative speed: %w", types.ErrMalformedInput)
	}

	aw := &awareness{
		stationID: strconv.FormatInt(*d.StationID, 10),
		lat:       *d.Latitude,
		lng:       *d.Longitude,
		kind:      types.KindOrdinary,
	}
	if d.Heading != nil {
		aw.heading = types.NormalizeHeading(*d.Heading)
	}
	if d.Speed != nil {
		aw.speed = *d.Speed
	}
	if d.StationType != nil {
		if kind, ok := stationTypes[*d.StationType]; ok {
			aw.kind = kind
		}
	}
	return aw, nil
}

func normalizeEvent(d datagram) (*event, error) {
	ev := &event{id: d.EventID, description: d.Description}

	switch {
	case d.EventType != nil:
		ev.causeCode = *d.EventType
	case d.Situation != nil && d.Situation.EventType != nil:
		ev.causeCode = d.Situation.EventType.CauseCode
	default:
		return nil, fmt.Errorf("event without a cause code: %w", types.ErrMalformedInput)
	}
	if d.Situation != nil && ev.description == "" {
		ev.description = d.Situation.Description
	}

	switch {
	case d.Latitude != nil && d.Longitude != nil:
		ev.lat, ev.lng = *d.Latitude, *d.Longitude
	case d.Location != nil && d.Location.EventPosition != nil:
		ev.lat, ev.lng = d.Location.EventPosition.degrees()
	case d.Management != nil && d.Management.EventPosition != nil:
		ev.lat, ev.lng = d.Management.EventPosition.degrees()
	default:
		return nil, fmt.Errorf("event without a position: %w", types.ErrMalformedInput)
	}
	if !geo.ValidCoordinates(ev.lat, ev.lng) {
		return nil, fmt.Errorf("event position out of range: %w", types.ErrMalformedInput)
	}

	if d.Location != nil {
		ev.heading = types.NormalizeHeading(d.Location.EventPositionHeading)
	} else if d.Heading != nil {
		ev.heading = types.NormalizeHeading(*d.Heading)
	}

	switch {
	case d.Header != nil && d.Header.StationID != 0:
		ev.stationID = strconv.FormatInt(d.Header.StationID, 10)
	case d.Management != nil && d.Management.ActionID != nil:
		ev.stationID = strconv.FormatInt(d.Management.ActionID.OriginatingStationID, 10)
	}

	// Repeated announcements dedup on id; an announcement without one gets a
	// fresh identity and lives for one TTL.
	if ev.id == "" {
		if ev.stationID != "" {
			ev.id = "denm-" + ev.stationID
		} else {
			ev.id = uuid.NewString()
		}
	}
	return ev, nil
}
