package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

type route struct {
	pattern string
	proxy   *ServiceProxy
	strip   string
}

type Handler struct {
	routes []route
	logger *slog.Logger
}

func NewHandler(ordersProxy, inventoryProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		routes: []route{
			{pattern: "/orders", proxy: ordersProxy},
			{pattern: "/orders/{path...}", proxy: ordersProxy},
			{pattern: "/partners/{path...}", proxy: ordersProxy},
			{pattern: "/inventory/{path...}", proxy: inventoryProxy, strip: "/inventory"},
		},
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	for _, rt := range h.routes {
		mux.HandleFunc(rt.pattern, telemetry.WithHTTPRoute(h.forward(rt)))
	}
}

func (h *Handler) forward(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, rt.strip)
		if path == "" {
			path = "/"
		}

		start := time.Now()
		resp, err := rt.proxy.ForwardRequest(r.Context(), r, path)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to forward request", "error", err, "path", path)
			h.writeError(w, http.StatusBadGateway, "service unavailable")
			return
		}
		defer func() { _ = resp.Body.Close() }()

		copyHeaders(w.Header(), resp.Header, responseHeaders)
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to copy response body", "error", err)
		}

		h.logger.InfoContext(r.Context(), "request proxied",
			"method", r.Method,
			"path", path,
			"status", resp.StatusCode,
			"duration", time.Since(start),
		)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
