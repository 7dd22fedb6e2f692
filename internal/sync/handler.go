package handler

import (
	"io"
	"net/http"

	"appsync/internal/sync/model"
	"appsync/internal/sync/service"
	"appsync/middleware"
	"appsync/pkg/apperr"
	"appsync/pkg/response"

	"github.com/gorilla/mux"
)

type SyncHandler struct {
	Service *service.SyncService
}

func NewSyncHandler(service *service.SyncService) *SyncHandler {
	return &SyncHandler{Service: service}
}

func (h *SyncHandler) Register(r *mux.Router) {
	r.HandleFunc("", h.Pull).Methods(http.MethodGet)
	r.HandleFunc("", h.Push).Methods(http.MethodPost)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/force", h.Force).Methods(http.MethodPost)
	r.HandleFunc("/conflicts", h.Conflicts).Methods(http.MethodPost)
}

func readItems(r *http.Request) ([]model.Item, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperr.Validation("failed to read request body")
	}
	return model.DecodeRequest(body)
}

func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Service.Pull(r.Context(), middleware.UserID(r.Context()), q.Get("last_sync"), q.Get("since_version"))
	if err != nil {
		response.FromError(w, "Failed to sync data", err)
		return
	}
	response.OK(w, "Data synced successfully", res)
}

func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	items, err := readItems(r)
	if err != nil {
		response.FromError(w, "Invalid sync payload", err)
		return
	}

	ctx := r.Context()
	res, err := h.Service.Push(ctx, middleware.UserID(ctx), middleware.SessionID(ctx), items)
	if err != nil {
		response.FromError(w, "Failed to sync data", err)
		return
	}
	response.OK(w, "Data synced successfully", res)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Status(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.FromError(w, "Failed to get sync status", err)
		return
	}
	response.OK(w, "Sync status fetched successfully", res)
}

func (h *SyncHandler) Force(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Service.ForceFullResync(ctx, middleware.UserID(ctx), middleware.SessionID(ctx))
	if err != nil {
		response.FromError(w, "Failed to force sync", err)
		return
	}
	response.OK(w, "Force sync completed successfully", res)
}

func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	items, err := readItems(r)
	if err != nil {
		response.FromError(w, "Invalid sync payload", err)
		return
	}
	res, err := h.Service.DetectConflicts(r.Context(), middleware.UserID(r.Context()), items)
	if err != nil {
		response.FromError(w, "Failed to check conflicts", err)
		return
	}
	response.OK(w, "Conflict check completed", res)
}
