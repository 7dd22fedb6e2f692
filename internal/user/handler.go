package handler

import (
	"net/http"

	"appsync/internal/user/model"
	"appsync/internal/user/service"
	"appsync/middleware"
	"appsync/pkg/response"

	"github.com/gorilla/mux"
)

type UserHandler struct {
	Service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{Service: service}
}

// RegisterPublic mounts the routes that need no token.
func (h *UserHandler) RegisterPublic(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
}

// RegisterPrivate mounts the routes behind AuthMiddleware.
func (h *UserHandler) RegisterPrivate(r *mux.Router) {
	r.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	r.HandleFunc("/profile", h.UpdateProfile).Methods(http.MethodPut)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/account", h.DeleteAccount).Methods(http.MethodDelete)
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := response.Bind(r, &req); err != nil {
		response.FromError(w, "Invalid request body", err)
		return
	}
	u, err := h.Service.Register(r.Context(), req)
	if err != nil {
		response.FromError(w, "Registration failed", err)
		return
	}
	response.Created(w, "User registered successfully", model.RegisterResponse{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
	})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := response.Bind(r, &req); err != nil {
		response.FromError(w, "Invalid request body", err)
		return
	}
	res, err := h.Service.Login(r.Context(), req)
	if err != nil {
		response.FromError(w, "Login failed", err)
		return
	}
	response.OK(w, "Login successful", res)
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Profile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.FromError(w, "Failed to fetch profile", err)
		return
	}
	response.OK(w, "Profile fetched successfully", u)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if err := response.Bind(r, &req); err != nil {
		response.FromError(w, "Invalid request body", err)
		return
	}
	u, err := h.Service.UpdateProfile(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		response.FromError(w, "Failed to update profile", err)
		return
	}
	response.OK(w, "Profile updated successfully", u)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), middleware.UserID(r.Context())); err != nil {
		response.FromError(w, "Logout failed", err)
		return
	}
	response.OK(w, "Logout successful", nil)
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteAccount(r.Context(), middleware.UserID(r.Context())); err != nil {
		response.FromError(w, "Failed to delete account", err)
		return
	}
	response.OK(w, "Account deleted successfully", nil)
}
