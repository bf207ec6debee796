// Package main provides a combined feed simulator: it serves a fleet position
// endpoint over HTTP and emits CAM/DENM-style JSON datagrams over UDP, so a
// full intersection daemon can be exercised without real onboard units.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jlaranjo/intersectd/pkg/geo"
)

// simVehicle is one simulated vehicle circulating near the intersection.
type simVehicle struct {
	id          string
	stationID   int64
	stationType int
	lat, lng    float64
	heading     float64
	speed       float64 // m/s
	waitChance  float64
	waiting     bool
}

type simulator struct {
	mu        sync.Mutex
	centerLat float64
	centerLng float64
	fleet     []*simVehicle
	broadcast []*simVehicle
	ambulance *simVehicle
	rng       *rand.Rand
}

func newSimulator(lat, lng float64, fleetCount, broadcastCount int) *simulator {
	s := &simulator{
		centerLat: lat,
		centerLng: lng,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := 0; i < fleetCount; i++ {
		s.fleet = append(s.fleet, s.spawn(int64(1000+i), 5))
	}
	for i := 0; i < broadcastCount; i++ {
		s.broadcast = append(s.broadcast, s.spawn(int64(2000+i), 5))
	}
	return s
}

func (s *simulator) spawn(stationID int64, stationType int) *simVehicle {
	headings := []float64{0, 90, 180, 270}
	return &simVehicle{
		id:          uuid.NewString()[:8],
		stationID:   stationID,
		stationType: stationType,
		lat:         s.centerLat + (s.rng.Float64()-0.5)*geo.MetersToLatDegrees(400),
		lng:         s.centerLng + (s.rng.Float64()-0.5)*geo.MetersToLngDegrees(400, s.centerLat),
		heading:     headings[s.rng.Intn(len(headings))],
		speed:       4 + s.rng.Float64()*10,
		waitChance:  0.15,
	}
}

// step advances every vehicle along its heading and occasionally stops one at
// the stop line or turns it onto the cross street.
func (s *simulator) step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(append([]*simVehicle{}, s.fleet...), s.broadcast...)
	if s.ambulance != nil {
		all = append(all, s.ambulance)
	}

	for _, v := range all {
		if v.stationType != 10 { // the ambulance never stops or turns
			if s.rng.Float64() < v.waitChance*dt.Seconds() {
				v.waiting = !v.waiting
			}
			if s.rng.Float64() < 0.02*dt.Seconds() {
				v.heading = math.Mod(v.heading+90, 360)
			}
		}
		if v.waiting {
			continue
		}
		dist := v.speed * dt.Seconds()
		rad := v.heading * math.Pi / 180
		v.lat += geo.MetersToLatDegrees(dist * math.Cos(rad))
		v.lng += geo.MetersToLngDegrees(dist*math.Sin(rad), v.lat)

		// Wrap vehicles that wander too far back onto the grid.
		if geo.HaversineDistance(v.lat, v.lng, s.centerLat, s.centerLng) > 600 {
			v.lat = s.centerLat + (s.rng.Float64()-0.5)*geo.MetersToLatDegrees(400)
			v.lng = s.centerLng + (s.rng.Float64()-0.5)*geo.MetersToLngDegrees(400, s.centerLat)
		}
	}
}

// dispatchAmbulance starts an emergency run toward the intersection from a
// random approach; it despawns once it has crossed through.
func (s *simulator) dispatchAmbulance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	headings := []float64{0, 90, 180, 270}
	heading := headings[s.rng.Intn(len(headings))]
	// Spawn 500 m out on the side the heading points away from.
	rad := heading * math.Pi / 180
	s.ambulance = &simVehicle{
		id:          "ambulance-1",
		stationID:   999,
		stationType: 10,
		lat:         s.centerLat - geo.MetersToLatDegrees(500*math.Cos(rad)),
		lng:         s.centerLng - geo.MetersToLngDegrees(500*math.Sin(rad), s.centerLat),
		heading:     heading,
		speed:       18,
	}
	log.Printf("ambulance dispatched, heading %.0f", heading)
}

func (s *simulator) ambulanceDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ambulance == nil {
		return false
	}
	a := s.ambulance
	rad := a.heading * math.Pi / 180
	// Past the intersection when the vector to the center opposes the heading.
	dLat := s.centerLat - a.lat
	dLng := s.centerLng - a.lng
	if dLat*math.Cos(rad)+dLng*math.Sin(rad) < 0 &&
		geo.HaversineDistance(a.lat, a.lng, s.centerLat, s.centerLng) > 200 {
		s.ambulance = nil
		return true
	}
	return false
}

// ---------------------------- fleet HTTP surface ----------------------------

type fleetReport struct {
	ID       string    `json:"id"`
	Location fleetPos  `json:"location"`
	Heading  float64   `json:"heading"`
	Speed    float64   `json:"speed"`
	Type     string    `json:"type,omitempty"`
	Waiting  bool      `json:"waiting,omitempty"`
	SeenAt   time.Time `json:"seenAt"`
}

type fleetPos struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *simulator) serveFleet(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	reports := make([]fleetReport, 0, len(s.fleet))
	now := time.Now()
	for _, v := range s.fleet {
		reports = append(reports, fleetReport{
			ID:       v.id,
			Location: fleetPos{v.lat, v.lng},
			Heading:  v.heading,
			Speed:    v.speed,
			Waiting:  v.waiting,
			SeenAt:   now,
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		log.Printf("encoding fleet response: %v", err)
	}
}

// --------------------------- broadcast UDP surface --------------------------

type camMessage struct {
	StationID   int64   `json:"stationID"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Heading     float64 `json:"heading"`
	Speed       float64 `json:"speed"`
	StationType int     `json:"stationType"`
}

type denmMessage struct {
	Header struct {
		MessageID int   `json:"messageID"`
		StationID int64 `json:"stationID"`
	} `json:"header"`
	Management struct {
		EventPosition struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"eventPosition"`
		StationType int `json:"stationType"`
	} `json:"management"`
	Situation struct {
		EventType struct {
			CauseCode    int `json:"causeCode"`
			SubCauseCode int `json:"subCauseCode"`
		} `json:"eventType"`
		Description string `json:"description,omitempty"`
	} `json:"situation"`
	Location struct {
		EventPositionHeading float64 `json:"eventPositionHeading"`
	} `json:"location"`
}

func (s *simulator) sendBroadcast(conn net.Conn) {
	s.mu.Lock()
	vehicles := append([]*simVehicle{}, s.broadcast...)
	ambulance := s.ambulance
	s.mu.Unlock()

	for _, v := range vehicles {
		speed := v.speed
		if v.waiting {
			speed = 0
		}
		send(conn, camMessage{v.stationID, v.lat, v.lng, v.heading, speed, v.stationType})
	}

	if ambulance != nil {
		send(conn, camMessage{ambulance.stationID, ambulance.lat, ambulance.lng,
			ambulance.heading, ambulance.speed, ambulance.stationType})

		// The ambulance announces itself with a DENM (cause 6, emergency
		// vehicle approaching) so the signal controller preempts for it.
		var d denmMessage
		d.Header.MessageID = 1
		d.Header.StationID = ambulance.stationID
		d.Management.EventPosition.Latitude = ambulance.lat * 1e7
		d.Management.EventPosition.Longitude = ambulance.lng * 1e7
		d.Management.StationType = ambulance.stationType
		d.Situation.EventType.CauseCode = 6
		d.Situation.Description = "emergency vehicle approaching"
		d.Location.EventPositionHeading = ambulance.heading
		send(conn, d)
	}
}

func (s *simulator) sendHazard(conn net.Conn) {
	s.mu.Lock()
	lat := s.centerLat + (s.rng.Float64()-0.5)*geo.MetersToLatDegrees(300)
	lng := s.centerLng + (s.rng.Float64()-0.5)*geo.MetersToLngDegrees(300, s.centerLat)
	s.mu.Unlock()

	var d denmMessage
	d.Header.MessageID = 1
	d.Header.StationID = 500
	d.Management.EventPosition.Latitude = lat
	d.Management.EventPosition.Longitude = lng
	d.Situation.EventType.CauseCode = 2
	d.Situation.Description = "simulated accident"
	send(conn, d)
	log.Printf("hazard announced at %.5f,%.5f", lat, lng)
}

func send(conn net.Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshaling datagram: %v", err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		log.Printf("sending datagram: %v", err)
	}
}

func main() {
	httpAddr := flag.String("http", ":9100", "Fleet HTTP listen address")
	udpTarget := flag.String("udp", "127.0.0.1:5005", "Broadcast UDP target address")
	lat := flag.Float64("lat", 40.6329, "Intersection latitude")
	lng := flag.Float64("lng", -8.6585, "Intersection longitude")
	fleetCount := flag.Int("fleet", 4, "Number of fleet vehicles")
	broadcastCount := flag.Int("broadcast", 4, "Number of broadcast vehicles")
	camInterval := flag.Duration("cam-interval", 500*time.Millisecond, "CAM send interval")
	hazardEvery := flag.Duration("hazard-every", 30*time.Second, "Hazard announcement interval")
	ambulanceEvery := flag.Duration("ambulance-every", 45*time.Second, "Ambulance dispatch interval")
	flag.Parse()

	sim := newSimulator(*lat, *lng, *fleetCount, *broadcastCount)

	conn, err := net.Dial("udp", *udpTarget)
	if err != nil {
		log.Fatalf("dialing UDP target: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/positions", sim.serveFleet)
	server := &http.Server{Addr: *httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("fleet endpoint listening on %s/positions", *httpAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("fleet HTTP server: %v", err)
		}
	}()

	go func() {
		stepTicker := time.NewTicker(200 * time.Millisecond)
		camTicker := time.NewTicker(*camInterval)
		hazardTicker := time.NewTicker(*hazardEvery)
		ambulanceTicker := time.NewTicker(*ambulanceEvery)
		defer stepTicker.Stop()
		defer camTicker.Stop()
		defer hazardTicker.Stop()
		defer ambulanceTicker.Stop()

		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-stepTicker.C:
				sim.step(now.Sub(last))
				last = now
				if sim.ambulanceDone() {
					log.Print("ambulance cleared the intersection")
				}
			case <-camTicker.C:
				sim.sendBroadcast(conn)
			case <-hazardTicker.C:
				sim.sendHazard(conn)
			case <-ambulanceTicker.C:
				sim.dispatchAmbulance()
			}
		}
	}()

	log.Printf("simulating %d fleet + %d broadcast vehicles around %.5f,%.5f; sending datagrams to %s",
		*fleetCount, *broadcastCount, *lat, *lng, *udpTarget)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
