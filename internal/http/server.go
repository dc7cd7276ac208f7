package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorFromHeaders)

		r.Put("/wallet", handler.SetWallet)
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrder)
			r.Get("/", handler.ListMyOrders)
			r.Get("/{orderId}", handler.GetOrder)
			r.Post("/{orderId}/confirm", handler.ConfirmPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/orders", handler.ListOrders)
			r.Post("/orders/reprocess", handler.BulkReprocess)
			r.Post("/orders/{orderId}/check", handler.LockOrder)
			r.Post("/orders/{orderId}/decision", handler.DecideOrder)
			r.Post("/orders/{orderId}/reprocess", handler.ReprocessOrder)

			r.Route("/upi", func(r chi.Router) {
				r.Get("/", handler.ListUpis)
				r.Post("/", handler.CreateUpi)
				r.Put("/{upiId}", handler.UpdateUpi)
				r.Delete("/{upiId}", handler.DeleteUpi)
			})

			r.Put("/price", handler.SetPrice)
			r.Get("/feed", handler.AdminFeed)
		})
	})

	return &Server{Router: r}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id, X-User-Name, X-User-Email, X-User-Picture, X-User-Role")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitComma(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
