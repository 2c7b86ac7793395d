package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashgrove/rota/internal/clock"
	"github.com/ashgrove/rota/internal/handler"
	"github.com/ashgrove/rota/internal/middleware"
	"github.com/ashgrove/rota/internal/rotation"
	"github.com/ashgrove/rota/internal/store"
	ws "github.com/ashgrove/rota/internal/websocket"
)

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	engine       *rotation.Engine
	authH        *handler.AuthHandler
	userH        *handler.UserHandler
	propertyH    *handler.PropertyHandler
	tenantH      *handler.TenantHandler
	taskH        *handler.TaskHandler
	assignmentH  *handler.AssignmentHandler
	rotationH    *handler.RotationHandler
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	logger       *slog.Logger
}

func New(db *sql.DB, civil *clock.Civil, clk clock.Clock, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	propertyStore := store.NewPropertyStore(db)
	tenantStore := store.NewTenantStore(db)
	taskStore := store.NewTaskStore(db)

	engine := rotation.NewEngine(db, civil, clk, logger.With("component", "rotation"))

	return &Server{
		db:           db,
		hub:          hub,
		engine:       engine,
		authH:        handler.NewAuthHandler(userStore, sessionStore, logger.With("component", "auth")),
		userH:        handler.NewUserHandler(userStore, logger.With("component", "user")),
		propertyH:    handler.NewPropertyHandler(propertyStore, logger.With("component", "property")),
		tenantH:      handler.NewTenantHandler(tenantStore, logger.With("component", "tenant")),
		taskH:        handler.NewTaskHandler(engine, taskStore, clk, hub, logger.With("component", "task")),
		assignmentH:  handler.NewAssignmentHandler(engine, hub, logger.With("component", "assignment")),
		rotationH:    handler.NewRotationHandler(engine, hub, logger.With("component", "rotation_order")),
		sessionStore: sessionStore,
		userStore:    userStore,
		logger:       logger,
	}
}

// Engine exposes the rotation engine so the sweep scheduler can share it.
func (s *Server) Engine() *rotation.Engine {
	return s.engine
}

// Hub exposes the websocket hub so background jobs can broadcast.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/login", s.authH.Login)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)

	// Task API routes — reads are open to any authenticated user
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("GET /api/tasks/{id}/assignments", s.taskH.ListAssignments)
	mux.HandleFunc("GET /api/tasks/{id}/completions", s.taskH.ListCompletions)
	mux.HandleFunc("GET /api/tasks/{id}/rotation", s.rotationH.Get)

	// Assignment API routes
	mux.HandleFunc("GET /api/assignments/mine", s.assignmentH.Mine)
	mux.HandleFunc("POST /api/assignments/{id}/complete", s.assignmentH.Complete)

	// Property API routes
	mux.HandleFunc("GET /api/properties", s.propertyH.List)
	mux.HandleFunc("GET /api/properties/{id}", s.propertyH.Get)
	mux.HandleFunc("GET /api/properties/{id}/rooms", s.propertyH.ListRooms)

	// Tenant API routes
	mux.HandleFunc("GET /api/tenants", s.tenantH.List)
	mux.HandleFunc("GET /api/tenants/{id}", s.tenantH.Get)

	// WebSocket for live dashboard updates
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	// Admin-only routes
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	mux.Handle("/api/admin/", http.StripPrefix("/api/admin", middleware.RequireAdmin(adminMux)))

	// Admin-only mutations on shared resources
	mux.Handle("POST /api/tasks", middleware.RequireAdmin(http.HandlerFunc(s.taskH.Create)))
	mux.Handle("GET /api/tasks/stats", middleware.RequireAdmin(http.HandlerFunc(s.taskH.Stats)))
	mux.Handle("PUT /api/tasks/{id}", middleware.RequireAdmin(http.HandlerFunc(s.taskH.Update)))
	mux.Handle("DELETE /api/tasks/{id}", middleware.RequireAdmin(http.HandlerFunc(s.taskH.Delete)))
	mux.Handle("PUT /api/tasks/{id}/assignments", middleware.RequireAdmin(http.HandlerFunc(s.taskH.UpdateAssignments)))
	mux.Handle("PUT /api/tasks/{id}/rotation", middleware.RequireAdmin(http.HandlerFunc(s.rotationH.Put)))
	mux.Handle("POST /api/completions/{id}/verify", middleware.RequireAdmin(http.HandlerFunc(s.assignmentH.Verify)))
	mux.Handle("POST /api/sweep", middleware.RequireAdmin(http.HandlerFunc(s.assignmentH.Sweep)))
	mux.Handle("POST /api/properties", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.Create)))
	mux.Handle("PUT /api/properties/{id}", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.Update)))
	mux.Handle("DELETE /api/properties/{id}", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.Delete)))
	mux.Handle("POST /api/properties/{id}/rooms", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.CreateRoom)))
	mux.Handle("PUT /api/rooms/{id}", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.UpdateRoom)))
	mux.Handle("DELETE /api/rooms/{id}", middleware.RequireAdmin(http.HandlerFunc(s.propertyH.DeleteRoom)))
	mux.Handle("POST /api/tenants", middleware.RequireAdmin(http.HandlerFunc(s.tenantH.Create)))
	mux.Handle("PUT /api/tenants/{id}", middleware.RequireAdmin(http.HandlerFunc(s.tenantH.Update)))
	mux.Handle("DELETE /api/tenants/{id}", middleware.RequireAdmin(http.HandlerFunc(s.tenantH.Delete)))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /users", s.userH.Create)
	mux.HandleFunc("GET /users", s.userH.List)
	mux.HandleFunc("GET /users/{id}", s.userH.Get)
	mux.HandleFunc("PUT /users/{id}", s.userH.Update)
	mux.HandleFunc("DELETE /users/{id}", s.userH.Delete)
}
