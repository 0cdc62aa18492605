package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(s.instrument)

	r.HandleFunc("/health", s.health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.getStats).Methods("GET")
	api.HandleFunc("/folders", s.getFolders).Methods("GET")
	api.HandleFunc("/state", s.getState).Methods("GET")
	api.HandleFunc("/state", s.clearState).Methods("DELETE")
	api.HandleFunc("/progress", s.streamProgress).Methods("GET")
	api.HandleFunc("/settings", s.getSettings).Methods("GET")
	api.HandleFunc("/backup", s.getBackup).Methods("GET")

	api.Handle("/analyze", s.limiter.middleware(http.HandlerFunc(s.analyze))).Methods("POST")
	api.Handle("/organize", s.limiter.middleware(http.HandlerFunc(s.organize))).Methods("POST")
	api.Handle("/restore", s.limiter.middleware(http.HandlerFunc(s.restore))).Methods("POST")
	api.Handle("/settings", s.limiter.middleware(http.HandlerFunc(s.updateSettings))).Methods("PUT")

	return r
}
