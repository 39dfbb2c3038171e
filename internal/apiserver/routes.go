package apiserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	s.router.Use(s.logRequests)
	api := s.router.PathPrefix("/api/v1alpha1").Subrouter()

	// Health and metrics
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Workflows
	api.HandleFunc("/workflows", s.handleListWorkflows).Methods("GET")
	api.HandleFunc("/workflows/{key}", s.handleGetWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{key}/runs", s.handleStartRun).Methods("POST")

	// Runs, scoped by workflow key. GET /runs?workflow=xxx filters.
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{workflow}/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{workflow}/{id}", s.handleDeleteRun).Methods("DELETE")
	api.HandleFunc("/runs/{workflow}/{id}/logs", s.handleGetRunLogs).Methods("GET")

	// Agents
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{key}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{key}/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/agents/{key}/evals", s.handleEvaluate).Methods("POST")

	// Tools
	api.HandleFunc("/tools", s.handleListTools).Methods("GET")
	api.HandleFunc("/tools/{id}", s.handleGetTool).Methods("GET")
	api.HandleFunc("/tools/{id}/execute", s.handleExecuteTool).Methods("POST")

	// Eval results
	api.HandleFunc("/evals", s.handleListEvals).Methods("GET")

	// Apply (WorkflowRun manifests)
	api.HandleFunc("/apply", s.handleApply).Methods("POST")
}
