// Package api exposes the notification operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-pushhub-service/internal/dispatch"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// BasePath is the prefix every notification route is mounted under.
const BasePath = push.BasePath

// HealthMessage is the body of the liveness endpoint.
const HealthMessage = "Notifications API is up and running."

// NotificationService is the programmatic surface the handlers call into.
type NotificationService interface {
	Register(ctx context.Context, raw push.DeviceInstallation) (push.Installation, error)
	Schedule(ctx context.Context, req push.ScheduledNotificationRequest) (dispatch.Result, error)
	SendImmediate(ctx context.Context, installationID, platform, message string) (dispatch.Result, error)
}

// TimeParser turns a caller-supplied timestamp into an instant.
type TimeParser func(raw string) (time.Time, error)

type NotificationAPI struct {
	Service   NotificationService
	ParseTime TimeParser
	Logger    *slog.Logger
}

func NewNotificationAPI(service NotificationService, parseTime TimeParser, logger *slog.Logger) *NotificationAPI {
	return &NotificationAPI{
		Service:   service,
		ParseTime: parseTime,
		Logger:    logger.With("component", "NotificationAPI"),
	}
}

// Routes registers every handler on mux behind wrap.
func (api *NotificationAPI) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for _, path := range []string{BasePath, BasePath + "/installations", BasePath + "/schedule", BasePath + "/send-immediate"} {
		mux.Handle("OPTIONS "+path, wrap(noop))
	}
	mux.Handle("GET "+BasePath, wrap(http.HandlerFunc(api.Health)))
	mux.Handle("PUT "+BasePath+"/installations", wrap(http.HandlerFunc(api.UpdateInstallation)))
	mux.Handle("POST "+BasePath+"/schedule", wrap(http.HandlerFunc(api.ScheduleNotification)))
	mux.Handle("POST "+BasePath+"/send-immediate", wrap(http.HandlerFunc(api.SendImmediateNotification)))
}

func (api *NotificationAPI) Health(w http.ResponseWriter, _ *http.Request) {
	api.Logger.Debug("Health check endpoint called")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, HealthMessage)
}

func (api *NotificationAPI) UpdateInstallation(w http.ResponseWriter, r *http.Request) {
	var raw push.DeviceInstallation
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		api.Logger.Warn("UpdateInstallation: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid device installation data")
		return
	}

	installation, err := api.Service.Register(r.Context(), raw)
	if err != nil {
		if errors.Is(err, push.ErrValidation) {
			response.WriteJSONError(w, http.StatusBadRequest, "invalid device installation data")
			return
		}
		api.Logger.Error("Failed to create or update installation", "installation_id", raw.InstallationID, "err", err)
		WriteUnprocessable(w, err.Error())
		return
	}

	api.Logger.Info("Device installation updated", "installation_id", installation.InstallationID)
	w.WriteHeader(http.StatusOK)
}

func (api *NotificationAPI) ScheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req push.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Warn("ScheduleNotification: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.DeviceToken) == "" || strings.TrimSpace(req.Message) == "" {
		api.Logger.Warn("Schedule request missing required fields")
		response.WriteJSONError(w, http.StatusBadRequest, "deviceToken and message are required")
		return
	}

	scheduledTime, err := api.ParseTime(req.ScheduledTime)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err = api.Service.Schedule(r.Context(), push.ScheduledNotificationRequest{
		DeviceToken:   req.DeviceToken,
		Message:       req.Message,
		ScheduledTime: scheduledTime,
	})
	if err != nil {
		api.Logger.Error("Failed to schedule notification", "err", err)
		WriteUnprocessable(w, err.Error())
		return
	}

	api.Logger.Info("Notification scheduled", "scheduled_time", scheduledTime.UTC())
	w.WriteHeader(http.StatusOK)
}

func (api *NotificationAPI) SendImmediateNotification(w http.ResponseWriter, r *http.Request) {
	var req push.SendImmediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Warn("SendImmediateNotification: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.DeviceToken) == "" || strings.TrimSpace(req.Message) == "" {
		api.Logger.Warn("Immediate notification request missing required fields")
		response.WriteJSONError(w, http.StatusBadRequest, "deviceToken and message are required")
		return
	}

	if _, err := api.Service.SendImmediate(r.Context(), req.DeviceToken, req.Platform, req.Message); err != nil {
		api.Logger.Error("Failed to send immediate notification", "err", err)
		WriteUnprocessable(w, err.Error())
		return
	}

	api.Logger.Info("Immediate notification sent", "installation_id", req.DeviceToken)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Notification sent immediately.")
}
