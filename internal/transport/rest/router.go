package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/swaggo/swag"
	"go.uber.org/zap"

	"wellping/internal/config"
	"wellping/internal/logging"
	_ "wellping/internal/transport/rest/docs"
	"wellping/internal/transport/rest/handler"
	authmw "wellping/internal/transport/rest/middleware"
	"wellping/internal/transport/ws"
)

// AuthAPI issues and validates participant tokens.
type AuthAPI interface {
	handler.Authenticator
	authmw.TokenValidator
}

// Container holds all dependencies for the router
type Container struct {
	AuthService AuthAPI
	PingService handler.PingAPI
	Study       handler.StudyInfoProvider
	WSHub       *ws.Hub
	CORS        config.CORS
	Logger      *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	studyHandler := handler.NewStudyHandler(c.Study)
	pingHandler := handler.NewPingHandler(c.PingService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.CORS.AllowedOrigins, c.Logger)

	authMW := authmw.NewAuthMiddleware(c.AuthService)

	r.Use(middleware.RequestID)
	r.Use(logging.HTTPMiddleware(c.Logger))

	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/study", studyHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/openapi.json", serveOpenAPI).Methods("GET")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws", wsHandler.ServeWS).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Participant routes
	participant := v1.NewRoute().Subrouter()
	participant.Use(authMW.RequireParticipant)

	participant.HandleFunc("/pings", pingHandler.Start).Methods("POST", "OPTIONS")
	participant.HandleFunc("/pings/{pingId}/question/current", pingHandler.CurrentQuestion).Methods("GET", "OPTIONS")
	participant.HandleFunc("/pings/{pingId}/answers", pingHandler.RecordAnswer).Methods("POST", "OPTIONS")
	participant.HandleFunc("/pings/{pingId}/next", pingHandler.Next).Methods("POST", "OPTIONS")
	participant.HandleFunc("/pings/{pingId}/state", pingHandler.State).Methods("GET", "OPTIONS")
	participant.HandleFunc("/future-pings", pingHandler.FuturePings).Methods("GET", "OPTIONS")

	// CORS wraps the router so preflight requests are answered before
	// routing and authentication.
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   c.CORS.AllowedHeaders,
		AllowCredentials: false,
		MaxAge:           300,
	})(r)
}

func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		http.Error(w, "failed to render API description", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}
