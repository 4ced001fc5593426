package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Napageneral/onboard/internal/chats"
	"github.com/Napageneral/onboard/internal/clients"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/relay"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.Metrics.SnapshotJSON())
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	if s.Provisioner == nil {
		writeErr(w, http.StatusServiceUnavailable, "client registration is not configured")
		return
	}
	p, err := params(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	clientID, apiKey := strings.TrimSpace(p["client_id"]), strings.TrimSpace(p["api_key"])
	if clientID == "" || apiKey == "" {
		writeErr(w, http.StatusBadRequest, "client_id and api_key are required")
		return
	}

	sum, err := s.Provisioner.Provision(r.Context(), clientID, apiKey)
	if errors.Is(err, clients.ErrExists) {
		writeErr(w, http.StatusConflict, "Client already exists!")
		return
	}
	if err != nil {
		s.logger().Error("create client failed", "client_id", clientID, "error", err)
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	if s.Clients == nil {
		writeErr(w, http.StatusServiceUnavailable, "client registry is not configured")
		return
	}
	list, err := s.Clients.ListClients(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []clients.ClientSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": list})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	content := p["content"]
	if strings.TrimSpace(content) == "" {
		writeErr(w, http.StatusBadRequest, "content is required")
		return
	}
	s.forward(w, r, p["client_id"], p["assistant_id"], content, "message", "")
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	s.forward(w, r, p["client_id"], p["assistant_id"], relay.SummarizePrompt, "summarize", "")
}

func (s *Server) uploadContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if strings.TrimSpace(string(raw)) == "" {
		writeErr(w, http.StatusBadRequest, "content is empty")
		return
	}
	title := q.Get("title")
	s.forward(w, r, q.Get("client_id"), q.Get("assistant_id"), relay.UploadText(title, string(raw)), "upload", title)
}

// forward submits text and answers with the concatenated reply. Successful
// forwards are recorded in the submission audit log.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, clientID, assistantID, text, source, ref string) {
	if s.Forwarder == nil {
		writeErr(w, http.StatusServiceUnavailable, "forwarding is not configured")
		return
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		writeErr(w, http.StatusBadRequest, "client_id is required")
		return
	}

	reply, err := s.Forwarder.Submit(r.Context(), clientID, assistantID, text)
	if err != nil {
		code, detail := relayStatus(err)
		s.logger().Warn("forward failed", "client_id", clientID, "source", source, "error", err)
		writeErr(w, code, detail)
		return
	}
	if s.Documents != nil {
		if _, err := s.Documents.RecordSubmission(r.Context(), documents.Submission{
			ClientID:    clientID,
			AssistantID: reply.AssistantID,
			Source:      source,
			Ref:         ref,
			ContentHash: documents.HashContent(text),
			Response:    reply.Content,
		}); err != nil {
			s.logger().Warn("record submission failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"client_id":    clientID,
		"assistant_id": reply.AssistantID,
		"thread_id":    reply.ThreadID,
		"response":     reply.Content,
	})
}

func (s *Server) executeTool(w http.ResponseWriter, r *http.Request) {
	if s.Tools == nil {
		writeErr(w, http.StatusServiceUnavailable, "tools are not configured")
		return
	}
	p, err := params(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	res, ok := s.Tools.Handle(r.Context(), p["client_id"], p["assistant_id"], p["text"])
	if !ok {
		writeErr(w, http.StatusUnprocessableEntity, "no tool invocation found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	if s.Documents == nil {
		writeErr(w, http.StatusServiceUnavailable, "document store is not configured")
		return
	}
	docs, err := s.Documents.List(r.Context(), r.URL.Query().Get("client_id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []documents.WatchedDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) registerDocument(w http.ResponseWriter, r *http.Request) {
	if s.Documents == nil || s.Drive == nil {
		writeErr(w, http.StatusServiceUnavailable, "drive is not configured")
		return
	}
	p, err := params(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	clientID := strings.TrimSpace(p["client_id"])
	fileID := drive.ResolveFileID(firstNonEmpty(p["file_id"], p["url"]))
	if clientID == "" || fileID == "" {
		writeErr(w, http.StatusBadRequest, "client_id and file_id (or url) are required")
		return
	}

	meta, err := s.Drive.Metadata(r.Context(), fileID)
	if errors.Is(err, drive.ErrNotFound) || (err == nil && meta == nil) {
		writeErr(w, http.StatusNotFound, "Drive file not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}

	res, err := s.Documents.Register(r.Context(), fileID, clientID, meta.Name, meta.ModifiedTime)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{
		"document": res.Document,
		"created":  res.Created,
		"reason":   res.Reason,
	})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	if s.Chats == nil {
		writeErr(w, http.StatusServiceUnavailable, "chat log is not configured")
		return
	}
	q := r.URL.Query()
	f := chats.Filters{
		ChatID:   q.Get("chat_id"),
		Channel:  q.Get("channel"),
		Contains: q.Get("contains"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	msgs, err := s.Chats.Query(r.Context(), f)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []chats.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
