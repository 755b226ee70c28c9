// Package api exposes HTTP handlers for device registration, so clients can
// tell the service where their notifications should go.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
	"github.com/tinywideclouds/go-push-dispatch/store"
)

// UserResolver extracts the authenticated user id from a request. Returning
// false rejects the request with 401. This keeps the handlers independent of
// any particular auth middleware.
type UserResolver func(r *http.Request) (string, bool)

// DeviceAPI handles device registration against a DeviceStore.
type DeviceAPI struct {
	store   store.DeviceStore
	resolve UserResolver
	logger  *slog.Logger
}

func NewDeviceAPI(deviceStore store.DeviceStore, resolve UserResolver, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		store:   deviceStore,
		resolve: resolve,
		logger:  logger.With("component", "DeviceAPI"),
	}
}

type registerRequest struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
}

type unregisterRequest struct {
	Identifier string `json:"identifier"`
}

// RegisterHandler upserts a device for the authenticated user.
func (api *DeviceAPI) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := api.resolve(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Identifier == "" || req.Kind == "" {
		writeJSONError(w, http.StatusBadRequest, "missing identifier or kind")
		return
	}

	dev := push.Device{Identifier: req.Identifier, Kind: req.Kind}
	if err := api.store.Register(ctx, userID, dev); err != nil {
		api.logger.Error("failed to register device", "user", userID, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.logger.Info("device registered", "user", userID, "kind", req.Kind)

	w.WriteHeader(http.StatusNoContent)
}

// UnregisterHandler removes a device. Idempotent: unknown identifiers still
// return 204.
func (api *DeviceAPI) UnregisterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := api.resolve(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Identifier == "" {
		writeJSONError(w, http.StatusBadRequest, "missing identifier")
		return
	}

	if err := api.store.Unregister(ctx, userID, req.Identifier); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister.
		api.logger.Warn("failed to unregister device", "user", userID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
