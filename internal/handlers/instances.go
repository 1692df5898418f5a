package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/docker/go-units"

	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/instances"
)

const statusTimeout = 3 * time.Second

type instanceResponse struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Host            string `json:"host"`
	SSHUser         string `json:"ssh_user"`
	Status          string `json:"status"`
	LiveAvailable   bool   `json:"live_available"`
	ActiveTerminals int    `json:"active_terminals"`
	Age             string `json:"age"`
	CreatedAt       string `json:"created_at"`
}

func instanceToResponse(inst database.Instance, status string) instanceResponse {
	active := 0
	if Terminals != nil {
		for _, c := range Terminals.List(strconv.FormatUint(uint64(inst.ID), 10)) {
			if !c.IsClosed() {
				active++
			}
		}
	}
	return instanceResponse{
		ID:              inst.ID,
		Name:            inst.Name,
		DisplayName:     inst.DisplayName,
		Host:            inst.Host,
		SSHUser:         inst.SSHUser,
		Status:          status,
		LiveAvailable:   LiveEnabled && inst.Host != "",
		ActiveTerminals: active,
		Age:             units.HumanDuration(time.Since(inst.CreatedAt)),
		CreatedAt:       inst.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// resolveStatus asks the controller for the live status and falls back to
// the stored one. A changed status is written back.
func resolveStatus(ctx context.Context, inst database.Instance) string {
	ctrl := instances.Get()
	if ctrl == nil {
		return inst.Status
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	status, err := ctrl.Status(ctx, inst.ControlName())
	if err != nil {
		if !errors.Is(err, instances.ErrNotFound) {
			log.Printf("[handlers] status of %s: %v", inst.Name, err)
		}
		return inst.Status
	}
	if status != inst.Status {
		if err := database.UpdateInstanceStatus(inst.ID, status); err != nil {
			log.Printf("[handlers] save status of %s: %v", inst.Name, err)
		}
	}
	return status
}

func ListInstances(w http.ResponseWriter, r *http.Request) {
	list, err := database.ListInstances()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}

	resp := make([]instanceResponse, 0, len(list))
	for _, inst := range list {
		resp = append(resp, instanceToResponse(inst, resolveStatus(r.Context(), inst)))
	}
	writeJSON(w, http.StatusOK, resp)
}

func GetInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}
	inst, err := database.GetInstance(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Instance not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load instance")
		return
	}
	writeJSON(w, http.StatusOK, instanceToResponse(*inst, resolveStatus(r.Context(), *inst)))
}
