package router

import (
	"encoding/json"
	"net/http"

	dataHandler "appsync/internal/appdata"
	dataService "appsync/internal/appdata/service"
	syncHandler "appsync/internal/sync"
	syncService "appsync/internal/sync/service"
	userHandler "appsync/internal/user"
	userService "appsync/internal/user/service"
	"appsync/middleware"
	"appsync/pkg/response"
	"appsync/socket"

	"github.com/gorilla/mux"
)

type Deps struct {
	Users  *userService.UserService
	Data   *dataService.AppDataService
	Sync   *syncService.SyncService
	Hub    *socket.Hub
	Tokens middleware.TokenParser

	// Limiter is optional; nil disables rate limiting.
	Limiter      middleware.Limiter
	CORSOrigins  []string
	MaxBodyBytes int64
}

type health struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Framework string `json:"framework"`
}

func Setup(d Deps) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Resource not found", nil, "NOT_FOUND")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", nil, "METHOD_NOT_ALLOWED")
	})

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{Message: "Backend API is running", Status: "OK", Framework: "Go + gorilla/mux"})
	}).Methods(http.MethodGet)

	auth := middleware.AuthMiddleware(d.Tokens, d.Users)

	// WebSocket
	r.Handle("/ws", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		socket.ServeWs(d.Hub, w, r, middleware.UserID(ctx), middleware.SessionID(ctx))
	}))).Methods(http.MethodGet)

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	api.Use(middleware.MaxBody(d.MaxBodyBytes))

	users := userHandler.NewUserHandler(d.Users)
	userRoutes := api.PathPrefix("/user").Subrouter()
	users.RegisterPublic(userRoutes)
	private := userRoutes.NewRoute().Subrouter()
	private.Use(auth)
	users.RegisterPrivate(private)

	data := api.PathPrefix("/data").Subrouter()
	data.Use(auth)
	dataHandler.NewDataHandler(d.Data).Register(data)

	sync := api.PathPrefix("/sync").Subrouter()
	sync.Use(auth)
	syncHandler.NewSyncHandler(d.Sync).Register(sync)

	var h http.Handler = r
	h = middleware.CORSMiddleware(d.CORSOrigins)(h)
	h = middleware.SecurityHeaders(h)
	return middleware.RequestLogger(h)
}
