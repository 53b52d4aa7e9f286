package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"price_tracker/models"
	"price_tracker/services"
)

// Reader is what the API needs from the read model.
type Reader interface {
	ListProducts(ctx context.Context, status models.ProductStatus) ([]services.ProductView, error)
	GetProduct(ctx context.Context, id int64) (*services.ProductView, error)
	History(ctx context.Context, id int64) (*services.PriceHistoryView, error)
	PriceTrend(ctx context.Context, id int64) (*services.TrendView, error)
}

type Server struct {
	reader     Reader
	logger     *slog.Logger
	corsOrigin string
	router     *mux.Router
}

func NewServer(reader Reader, logger *slog.Logger, corsOrigin string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reader:     reader,
		logger:     logger.With("component", "api"),
		corsOrigin: corsOrigin,
		router:     mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(s.cors)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/produits", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/produits/{id}", s.handleProduct).Methods(http.MethodGet)
	api.HandleFunc("/produits/{id}/historique-prix", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/produits/{id}/price-trend", s.handleTrend).Methods(http.MethodGet)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.ProductStatus(r.URL.Query().Get("status"))
	if status != "" && status != models.StatusActive && status != models.StatusEnded {
		writeError(w, http.StatusBadRequest, "status must be active or ended")
		return
	}

	products, err := s.reader.ListProducts(r.Context(), status)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := s.reader.GetProduct(r.Context(), id)
	if err != nil {
		s.readError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	history, err := s.reader.History(r.Context(), id)
	if err != nil {
		s.readError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	trend, err := s.reader.PriceTrend(r.Context(), id)
	if err != nil {
		s.readError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func (s *Server) readError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
