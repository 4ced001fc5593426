// Package server exposes client registration, message relay, uploads, tool
// execution and Drive registration over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Napageneral/onboard/internal/chats"
	"github.com/Napageneral/onboard/internal/clients"
	"github.com/Napageneral/onboard/internal/compute"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/relay"
	"github.com/Napageneral/onboard/internal/tools"
)

const maxUploadBytes = 10 << 20

type ClientProvisioner interface {
	Provision(ctx context.Context, clientID, apiKey string) (clients.ClientSummary, error)
}

type ClientLister interface {
	ListClients(ctx context.Context) ([]clients.ClientSummary, error)
}

type Forwarder interface {
	Submit(ctx context.Context, clientID, assistantID, text string) (relay.Reply, error)
}

type ToolHandler interface {
	Handle(ctx context.Context, clientID, assistantID, text string) (tools.ToolResult, bool)
}

// DocumentStore is the Drive registration and audit surface.
type DocumentStore interface {
	Register(ctx context.Context, fileID, clientID, fileName, lastModified string) (documents.RegisterResult, error)
	List(ctx context.Context, clientID string) ([]documents.WatchedDocument, error)
	RecordSubmission(ctx context.Context, sub documents.Submission) (string, error)
}

type MetadataSource interface {
	Metadata(ctx context.Context, fileID string) (*drive.Metadata, error)
}

type ChatQuerier interface {
	Query(ctx context.Context, f chats.Filters) ([]chats.Message, error)
}

// Server holds the HTTP handlers' collaborators. Nil collaborators make the
// routes that need them answer 503.
type Server struct {
	Provisioner ClientProvisioner
	Clients     ClientLister
	Forwarder   Forwarder
	Tools       ToolHandler
	Documents   DocumentStore
	Drive       MetadataSource
	Chats       ChatQuerier
	Metrics     *compute.PollMetrics
	APIKey      string
	Logger      *slog.Logger
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)

	r.Group(func(api chi.Router) {
		api.Use(apiKeyGuard(s.APIKey))

		api.Get("/metrics", s.handleMetrics)
		api.Post("/client", s.createClient)
		api.Get("/clients", s.listClients)
		api.Post("/client/upload-content", s.uploadContent)

		api.Route("/messages", func(r chi.Router) {
			r.Post("/send", s.sendMessage)
			r.Post("/summarize", s.summarize)
		})

		api.Post("/tools/execute", s.executeTool)

		api.Route("/drive/documents", func(r chi.Router) {
			r.Get("/", s.listDocuments)
			r.Post("/", s.registerDocument)
		})

		api.Get("/chats", s.listChats)
	})
	return r
}

func (s *Server) logger() *slog.Logger { return logutil.OrDefault(s.Logger) }

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// apiKeyGuard requires key as X-API-Key or a bearer token. An empty key disables the check.
func apiKeyGuard(key string) func(http.Handler) http.Handler {
	required := strings.TrimSpace(key)
	if required == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidate := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if candidate == "" {
				auth := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					candidate = strings.TrimSpace(auth[7:])
				}
			}
			if subtle.ConstantTimeCompare([]byte(candidate), []byte(required)) != 1 {
				writeErr(w, http.StatusUnauthorized, "missing or invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// params merges query parameters with a JSON object body, body fields winning.
func params(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return out, nil
	}
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return nil, err
	}
	for k, v := range body {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out, nil
}

// relayStatus maps forwarding failures to HTTP statuses.
func relayStatus(err error) (int, string) {
	switch relay.KindOf(err) {
	case relay.KindUnknownClient:
		return http.StatusNotFound, "Client does not exist!"
	case relay.KindConfig:
		return http.StatusUnprocessableEntity, err.Error()
	case relay.KindRemote:
		return http.StatusBadGateway, err.Error()
	case relay.KindStore:
		return http.StatusInternalServerError, "credential store unavailable"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
