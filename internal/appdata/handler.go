package handler

import (
	"net/http"
	"strconv"

	"appsync/internal/appdata/model"
	"appsync/internal/appdata/service"
	"appsync/middleware"
	"appsync/pkg/apperr"
	"appsync/pkg/response"

	"github.com/gorilla/mux"
)

type DataHandler struct {
	Service *service.AppDataService
}

func NewDataHandler(service *service.AppDataService) *DataHandler {
	return &DataHandler{Service: service}
}

// Register mounts the CRUD routes on r, which is expected to be authenticated.
func (h *DataHandler) Register(r *mux.Router) {
	r.HandleFunc("", h.List).Methods(http.MethodGet)
	r.HandleFunc("", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/type/{kind}", h.ListByKind).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, apperr.NotFound("data not found")
	}
	return id, nil
}

func (h *DataHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	res, err := h.Service.List(r.Context(), userID, queryInt(r, "page"), queryInt(r, "per_page"), r.URL.Query().Get("type"))
	if err != nil {
		response.FromError(w, "Failed to fetch data", err)
		return
	}
	response.OK(w, "Data fetched successfully", res)
}

func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		response.FromError(w, "Data not found", err)
		return
	}
	rec, err := h.Service.Get(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		response.FromError(w, "Failed to fetch data", err)
		return
	}
	response.OK(w, "Data fetched successfully", rec)
}

func (h *DataHandler) ListByKind(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	recs, err := h.Service.ListByKind(r.Context(), middleware.UserID(r.Context()), kind)
	if err != nil {
		response.FromError(w, "Failed to fetch data by type", err)
		return
	}
	response.OK(w, "Data of type '"+kind+"' fetched successfully", recs)
}

func (h *DataHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRequest
	if err := response.Bind(r, &req); err != nil {
		response.FromError(w, "Invalid request body", err)
		return
	}
	in, err := req.Input()
	if err != nil {
		response.FromError(w, "Invalid data", err)
		return
	}

	ctx := r.Context()
	rec, err := h.Service.Create(ctx, middleware.UserID(ctx), in, middleware.SessionID(ctx))
	if err != nil {
		response.FromError(w, "Failed to create data", err)
		return
	}
	response.Created(w, "Data created successfully", rec)
}

func (h *DataHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		response.FromError(w, "Data not found", err)
		return
	}
	var req model.UpdateRequest
	if err := response.Bind(r, &req); err != nil {
		response.FromError(w, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	rec, err := h.Service.Update(ctx, middleware.UserID(ctx), id, req.Patch(), middleware.SessionID(ctx))
	if err != nil {
		response.FromError(w, "Failed to update data", err)
		return
	}
	response.OK(w, "Data updated successfully", rec)
}

func (h *DataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		response.FromError(w, "Data not found", err)
		return
	}

	ctx := r.Context()
	if err := h.Service.Delete(ctx, middleware.UserID(ctx), id, middleware.SessionID(ctx)); err != nil {
		response.FromError(w, "Failed to delete data", err)
		return
	}
	response.OK(w, "Data deleted successfully", nil)
}
