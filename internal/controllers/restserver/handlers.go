package restserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/snapshot"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/responseformat"
	"go.uber.org/zap"
)

// Handlers contains the HTTP handlers for the REST server.
type Handlers struct {
	snapshots *snapshot.Server
	view      *fusion.View
	coord     *signal.Coordinator
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// NewHandlers creates a handlers instance.
func NewHandlers(snapshots *snapshot.Server, view *fusion.View, coord *signal.Coordinator, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{
		snapshots: snapshots,
		view:      view,
		coord:     coord,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}
}

// GetSnapshot serves the latest cached snapshot. Serving a slightly stale
// build beats blocking a poller; clients judge freshness from generatedAt
// and sequence.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, req *http.Request) {
	if err := h.formatter.Write(w, req, h.snapshots.Latest()); err != nil {
		h.logger.Errorf("writing snapshot response: %v", err)
	}
}

// GetSignals serves the current per-approach signal state.
func (h *Handlers) GetSignals(w http.ResponseWriter, req *http.Request) {
	sv := h.coord.View()
	resp := struct {
		Signals                  []types.ApproachSignal `json:"signals"`
		EmergencyMode            bool                   `json:"emergencyMode"`
		ActiveEmergencyVehicleID string                 `json:"activeEmergencyVehicleId,omitempty"`
	}{sv.Signals, sv.EmergencyMode, sv.ActiveEmergencyVehicleID}
	if err := h.formatter.Write(w, req, resp); err != nil {
		h.logger.Errorf("writing signals response: %v", err)
	}
}

// GetVehicles serves the live fused vehicle list.
func (h *Handlers) GetVehicles(w http.ResponseWriter, req *http.Request) {
	if err := h.formatter.Write(w, req, h.view.Vehicles()); err != nil {
		h.logger.Errorf("writing vehicles response: %v", err)
	}
}

// GetHazards serves the unexpired hazard list.
func (h *Handlers) GetHazards(w http.ResponseWriter, req *http.Request) {
	if err := h.formatter.Write(w, req, h.view.Hazards()); err != nil {
		h.logger.Errorf("writing hazards response: %v", err)
	}
}

type emergencyCommand struct {
	VehicleID string   `json:"vehicleId"`
	Action    string   `json:"action"` // "activate" or "deactivate"
	Approach  string   `json:"approach,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

// PostEmergency handles emergency activate/deactivate commands.
func (h *Handlers) PostEmergency(w http.ResponseWriter, req *http.Request) {
	var cmd emergencyCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid request body")
		return
	}
	if cmd.VehicleID == "" {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "vehicleId is required")
		return
	}

	switch cmd.Action {
	case "activate":
		err := h.activate(cmd)
		if errors.Is(err, types.ErrInvalidApproach) || errors.Is(err, types.ErrMalformedInput) {
			h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			h.formatter.WriteError(w, req, http.StatusInternalServerError, err.Error())
			return
		}
	case "deactivate":
		if err := h.coord.DeactivateEmergency(cmd.VehicleID); err != nil {
			h.formatter.WriteError(w, req, http.StatusConflict, err.Error())
			return
		}
	default:
		h.formatter.WriteError(w, req, http.StatusBadRequest, "action must be activate or deactivate")
		return
	}

	h.writeOK(w, req)
}

func (h *Handlers) activate(cmd emergencyCommand) error {
	if cmd.Approach != "" {
		switch a := types.Approach(cmd.Approach); a {
		case types.ApproachNorth, types.ApproachEast, types.ApproachSouth, types.ApproachWest:
			return h.coord.ActivateEmergency(cmd.VehicleID, a)
		default:
			return types.ErrInvalidApproach
		}
	}
	if cmd.Heading == nil {
		return types.ErrInvalidApproach
	}
	return h.coord.ActivateEmergencyFromHeading(cmd.VehicleID, *cmd.Heading)
}

// PostVehicleHeading handles direction-change commands for a vehicle. When
// the vehicle is the active emergency vehicle, the preemption target follows
// the new heading.
func (h *Handlers) PostVehicleHeading(w http.ResponseWriter, req *http.Request) {
	vehicleID := mux.Vars(req)["id"]

	var body struct {
		Heading *float64 `json:"heading"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Heading == nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "heading is required")
		return
	}

	if err := h.coord.ChangeVehicleDirection(vehicleID, *body.Heading); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	h.writeOK(w, req)
}

func (h *Handlers) writeOK(w http.ResponseWriter, req *http.Request) {
	sv := h.coord.View()
	resp := struct {
		Status                   string `json:"status"`
		EmergencyMode            bool   `json:"emergencyMode"`
		ActiveEmergencyVehicleID string `json:"activeEmergencyVehicleId,omitempty"`
	}{"success", sv.EmergencyMode, sv.ActiveEmergencyVehicleID}
	if err := h.formatter.Write(w, req, resp); err != nil {
		h.logger.Errorf("writing command response: %v", err)
	}
}
