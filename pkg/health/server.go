package health

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solverhq/rebalancer/pkg/circuitbreaker"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/models"
)

// Trigger starts a rebalance. Implemented by the rebalancer service.
type Trigger interface {
	Rebalance(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int) error
}

// Server is the health and metrics HTTP server. It also carries the trigger
// endpoint the balance collaborator calls to start a rebalance.
type Server struct {
	port            string
	monitor         *Monitor
	trigger         Trigger
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker
	metricsAPIKey   string
	logger          logger.Logger
}

// NewServer creates the server. The metrics API key is read from
// METRICS_API_KEY; when unset the metrics endpoint is open.
func NewServer(port string, monitor *Monitor, trigger Trigger, circuitBreakers map[int]*circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	return &Server{
		port:            port,
		monitor:         monitor,
		trigger:         trigger,
		circuitBreakers: circuitBreakers,
		metricsAPIKey:   os.Getenv("METRICS_API_KEY"),
		logger:          log,
	}
}

// rebalanceRequest is the trigger endpoint payload. Amount is a decimal
// string in the source token's smallest unit.
type rebalanceRequest struct {
	TokenIn  tokenPayload `json:"token_in"`
	TokenOut tokenPayload `json:"token_out"`
	Amount   string       `json:"amount"`
}

type tokenPayload struct {
	ChainID  int    `json:"chain_id"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

func (t tokenPayload) toTokenData() (models.TokenData, error) {
	if !common.IsHexAddress(t.Address) {
		return models.TokenData{}, fmt.Errorf("invalid token address: %s", t.Address)
	}
	return models.TokenData{
		ChainID:  t.ChainID,
		Address:  common.HexToAddress(t.Address),
		Decimals: t.Decimals,
	}, nil
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the health check server. Blocks until the listener fails.
func (s *Server) Start() {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	// Rebalancing health verdict. Unhealthy answers 503 so load balancers
	// and alerting can key off the status code alone.
	http.HandleFunc("/rebalancing", func(w http.ResponseWriter, r *http.Request) {
		status, err := s.monitor.Check()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if !status.IsHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.Error("Error encoding health JSON: %v", err)
		}
	})

	// Detailed counts over a caller-chosen range, default 24h.
	http.HandleFunc("/rebalancing/metrics", func(w http.ResponseWriter, r *http.Request) {
		timeRange := 24 * time.Hour
		if rangeParam := r.URL.Query().Get("range"); rangeParam != "" {
			parsed, err := time.ParseDuration(rangeParam)
			if err != nil {
				http.Error(w, "Invalid range parameter", http.StatusBadRequest)
				return
			}
			timeRange = parsed
		}

		healthMetrics, err := s.monitor.Metrics(timeRange)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(healthMetrics); err != nil {
			s.logger.Error("Error encoding metrics JSON: %v", err)
		}
	})

	// Rebalance trigger, called by the balance collaborator
	http.Handle("/rebalance", s.metricsAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var request rebalanceRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		tokenIn, err := request.TokenIn.toTokenData()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tokenOut, err := request.TokenOut.toTokenData()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		amount, ok := new(big.Int).SetString(request.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			http.Error(w, "Invalid amount", http.StatusBadRequest)
			return
		}

		if err := s.trigger.Rebalance(r.Context(), tokenIn, tokenOut, amount); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})))

	// Circuit breaker status and admin reset
	http.HandleFunc("/circuit", func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]interface{})
		for chainID, cb := range s.circuitBreakers {
			state := "closed"
			if cb.IsOpen() {
				state = "open"
			}
			status[fmt.Sprintf("chain_%d", chainID)] = state
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.Error("Error encoding circuit JSON: %v", err)
		}
	})

	http.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		chainIDStr := r.URL.Query().Get("chain")
		if chainIDStr == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Missing chain parameter"))
			return
		}

		chainID, err := strconv.Atoi(chainIDStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid chain ID"))
			return
		}

		cb, ok := s.circuitBreakers[chainID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for chain %d", chainID)))
			return
		}

		cb.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
	})

	// Expose Prometheus metrics with API key authentication
	http.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, nil); err != nil {
		s.logger.Error("Health server error: %v", err)
	}
}
