package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	chat          *domain.ChatService
	defaultStream bool
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(chat *domain.ChatService, cfg *config.ChatConfig) *Handler {
	return &Handler{
		chat:          chat,
		defaultStream: cfg.StreamDefault,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"upstream_status,omitempty"`
	Request string `json:"request_id,omitempty"`
}

// HandleChat processes chat requests in streaming or blocking mode.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	req.RequestID = observability.GetRequestID(ctx)
	ctx = observability.WithAgentID(ctx, req.AgentID)
	if req.ConversationID != "" {
		ctx = observability.WithConversationID(ctx, req.ConversationID)
	}

	stream := req.WantsStream(h.defaultStream)

	logger := observability.FromContext(ctx)
	logger.Info("chat request received",
		observability.Int64("user_id", req.UserID),
		observability.Int64("merchant_id", req.MerchantID),
		observability.Bool("stream", stream),
	)

	if stream {
		h.handleStream(ctx, w, &req)
		return
	}

	result, err := h.chat.Chat(ctx, &req)
	if err != nil {
		logger.Error("chat failed", observability.Error(err))
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("chat succeeded",
		observability.Int("tokens", result.Usage.TotalTokens),
		observability.Float64("cost", result.Usage.Cost),
	)

	writeJSON(ctx, w, http.StatusOK, result)
}

func (h *Handler) handleStream(ctx context.Context, w http.ResponseWriter, req *domain.ChatRequest) {
	logger := observability.FromContext(ctx)

	sink, err := newSSESink(w)
	if err != nil {
		logger.Error("streaming not supported")
		h.writeError(ctx, w, err)
		return
	}

	if err := h.chat.Stream(ctx, req, sink); err != nil {
		logger.Warn("stream rejected", observability.Error(err))
		if !sink.started {
			h.writeError(ctx, w, err)
		}
	}
}

// HandleHistory returns the upstream message history of a conversation.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := historyRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	raw, err := h.chat.History(observability.WithAgentID(ctx, req.AgentID), req)
	if err != nil {
		observability.FromContext(ctx).Error("history failed", observability.Error(err))
		h.writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// HandleDeleteConversation removes an upstream conversation.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := historyRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if err := h.chat.DeleteConversation(observability.WithAgentID(ctx, req.AgentID), req); err != nil {
		observability.FromContext(ctx).Error("delete conversation failed", observability.Error(err))
		h.writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"result": "success"})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func historyRequest(r *http.Request) (*domain.HistoryRequest, error) {
	query := r.URL.Query()

	userID, err := parseID(query.Get("user_id"), "user_id")
	if err != nil {
		return nil, err
	}

	agentID, err := parseID(query.Get("agent_id"), "agent_id")
	if err != nil {
		return nil, err
	}

	return &domain.HistoryRequest{
		ConversationID: chi.URLParam(r, "conversationID"),
		UserID:         userID,
		AgentID:        agentID,
	}, nil
}

func parseID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return id, nil
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	resp := errorResponse{
		Error:   err.Error(),
		Code:    "internal_error",
		Request: observability.GetRequestID(ctx),
	}
	status := http.StatusInternalServerError

	var (
		validation *domain.ValidationError
		upstream   *domain.UpstreamError
		transport  *domain.TransportError
		parse      *domain.ParseError
	)

	switch {
	case errors.As(err, &validation):
		status, resp.Code, resp.Field = http.StatusBadRequest, "invalid_request", validation.Field
	case errors.Is(err, domain.ErrProviderNotFound):
		status, resp.Code = http.StatusBadRequest, "unknown_agent"
	case errors.Is(err, domain.ErrUnsupportedCapability):
		status, resp.Code = http.StatusNotImplemented, "unsupported"
	case errors.As(err, &upstream):
		status, resp.Code, resp.Status = http.StatusBadGateway, "upstream_error", upstream.Status
	case errors.As(err, &transport), errors.As(err, &parse):
		status, resp.Code = http.StatusBadGateway, "upstream_unavailable"
	}

	writeJSON(ctx, w, status, resp)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(ctx).Warn("failed to encode response", observability.Error(err))
	}
}
