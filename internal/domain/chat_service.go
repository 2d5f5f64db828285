package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/davidbz/hearth/internal/observability"
)

const (
	conversationTitleLength = 100
	defaultPersistTimeout   = 10 * time.Second
)

var errStreamTimeout = errors.New("stream timed out")

// Published event types.
const (
	EventTurnCommitted    = "turn.committed"
	EventTurnCommitFailed = "turn.commit_failed"
)

// ChatSettings holds the request-independent knobs of the chat pipeline.
type ChatSettings struct {
	// StreamTimeout bounds one upstream stream; zero disables the bound.
	StreamTimeout time.Duration
	// PersistTimeout bounds the final commit.
	PersistTimeout time.Duration
}

// ChatService relays chat requests to providers and commits one consolidated
// turn per request.
type ChatService struct {
	registry   ProviderRegistry
	router     Router
	classifier *Classifier
	estimator  *UsageEstimator
	store      TurnStore
	publisher  EventPublisher
	settings   ChatSettings
}

// NewChatService creates a new chat service (DI constructor).
func NewChatService(
	registry ProviderRegistry,
	router Router,
	classifier *Classifier,
	estimator *UsageEstimator,
	store TurnStore,
	publisher EventPublisher,
	settings ChatSettings,
) *ChatService {
	if settings.PersistTimeout <= 0 {
		settings.PersistTimeout = defaultPersistTimeout
	}

	return &ChatService{
		registry:   registry,
		router:     router,
		classifier: classifier,
		estimator:  estimator,
		store:      store,
		publisher:  publisher,
		settings:   settings,
	}
}

// Stream relays a provider stream to sink and commits the folded result.
// Only validation and routing failures are returned; anything that happens
// once the upstream call was attempted is reported through the sink.
func (s *ChatService) Stream(ctx context.Context, req *ChatRequest, sink EventSink) error {
	if err := ValidateChatRequest(req); err != nil {
		return err
	}

	provider, err := s.providerFor(ctx, req.AgentID)
	if err != nil {
		return err
	}

	ctx = observability.WithProvider(ctx, provider.Name())
	logger := observability.FromContext(ctx)

	streamCtx, cancel := s.streamContext(ctx)
	defer cancel()

	agg := NewAggregator(req.EffectiveQuery())

	var (
		outcome   string
		connected bool
	)

	chunks, err := provider.ChatStream(streamCtx, req)
	if err != nil {
		logger.Warn("failed to open provider stream", observability.Error(err))
		outcome, connected = OutcomeErrored, s.forwardError(ctx, agg, sink, err)
	} else {
		outcome, connected = s.relay(ctx, streamCtx, cancel, agg, chunks, sink)
	}

	agg.Drain()
	usage := s.estimator.Estimate(agg.UsageInput())

	if connected {
		if err := sink.SendStatistics(ctx, agg.Statistics(usage)); err != nil {
			logger.Info("caller went away before statistics", observability.Error(err))
		} else if err := sink.Close(ctx); err != nil {
			logger.Info("caller went away before stream end", observability.Error(err))
		}
	}

	s.commit(ctx, req, provider.Name(), agg, usage, outcome)
	agg.Close()

	logger.Info("stream finished",
		observability.String("outcome", outcome),
		observability.Int("total_tokens", usage.TotalTokens),
		observability.Bool("caller_connected", connected))

	return nil
}

// relay folds and forwards chunks until the stream ends. It reports the
// stream outcome and whether the caller is still connected.
func (s *ChatService) relay(
	ctx context.Context,
	streamCtx context.Context,
	cancel context.CancelFunc,
	agg *Aggregator,
	chunks <-chan RawChunk,
	sink EventSink,
) (string, bool) {
	logger := observability.FromContext(ctx)

	for {
		// Checked before every receive so nothing is read after cancellation.
		if streamCtx.Err() != nil {
			return s.interrupted(ctx, agg, sink)
		}

		var (
			chunk RawChunk
			ok    bool
		)
		select {
		case <-streamCtx.Done():
			return s.interrupted(ctx, agg, sink)
		case chunk, ok = <-chunks:
		}

		if !ok {
			if streamCtx.Err() != nil {
				return s.interrupted(ctx, agg, sink)
			}
			return OutcomeCompleted, true
		}

		if chunk.Err != nil {
			if streamCtx.Err() != nil {
				return s.interrupted(ctx, agg, sink)
			}
			logger.Warn("provider stream failed", observability.Error(chunk.Err))
			return OutcomeErrored, s.forwardError(ctx, agg, sink, chunk.Err)
		}

		ev, valid := s.classifier.Classify(chunk.Data)
		if !valid {
			logger.Debug("dropping stream chunk", observability.Error(&ParseError{Data: chunk.Data}))
			continue
		}

		if err := agg.Fold(&ev); err != nil {
			return OutcomeErrored, true
		}

		// Usage summaries surface through the statistics record.
		if ev.Kind == KindUsageSummary {
			continue
		}

		if err := sink.Send(ctx, &ev); err != nil {
			logger.Info("caller disconnected", observability.Error(err))
			cancel()
			return OutcomeCancelled, false
		}

		if ev.Kind == KindError {
			return OutcomeErrored, true
		}
	}
}

// interrupted handles a cancelled stream context: a caller disconnect, or the
// stream timeout while the caller is still listening.
func (s *ChatService) interrupted(ctx context.Context, agg *Aggregator, sink EventSink) (string, bool) {
	if ctx.Err() != nil {
		return OutcomeCancelled, false
	}

	observability.FromContext(ctx).Warn("provider stream timed out",
		observability.Duration("timeout", s.settings.StreamTimeout))

	return OutcomeErrored, s.forwardError(ctx, agg, sink, errStreamTimeout)
}

// forwardError folds and forwards the single error event of a failed stream.
func (s *ChatService) forwardError(ctx context.Context, agg *Aggregator, sink EventSink, err error) bool {
	ev := newErrorEvent(err)
	if foldErr := agg.Fold(&ev); foldErr != nil {
		return true
	}
	return sink.Send(ctx, &ev) == nil
}

func newErrorEvent(err error) NormalizedEvent {
	eventErr := errorEventFor(err)

	raw := []byte(`{"event":"error"}`)
	raw, _ = sjson.SetBytes(raw, "status", eventErr.Status)
	raw, _ = sjson.SetBytes(raw, "code", eventErr.Code)
	raw, _ = sjson.SetBytes(raw, "message", eventErr.Message)

	return NormalizedEvent{
		Kind: KindError,
		Name: EventNameError,
		Err:  eventErr,
		Raw:  raw,
		Metadata: map[string]any{
			"event":   EventNameError,
			"status":  eventErr.Status,
			"code":    eventErr.Code,
			"message": eventErr.Message,
		},
	}
}

// Chat performs a blocking provider call and commits its result. Provider
// failures are still committed as an errored turn before being returned.
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := ValidateChatRequest(req); err != nil {
		return nil, err
	}

	provider, err := s.providerFor(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	ctx = observability.WithProvider(ctx, provider.Name())
	logger := observability.FromContext(ctx)

	callCtx, cancel := s.streamContext(ctx)
	defer cancel()

	agg := NewAggregator(req.EffectiveQuery())

	reply, chatErr := provider.Chat(callCtx, req)
	outcome := OutcomeCompleted
	switch {
	case chatErr != nil && ctx.Err() != nil:
		outcome = OutcomeCancelled
	case chatErr != nil:
		logger.Warn("provider call failed", observability.Error(chatErr))
		outcome = OutcomeErrored
		ev := newErrorEvent(chatErr)
		_ = agg.Fold(&ev)
	default:
		ev := NormalizedEvent{
			Kind:           KindTextDelta,
			Name:           EventMessage,
			Text:           reply.Text,
			ConversationID: reply.ConversationID,
			MessageID:      reply.MessageID,
			Usage:          reply.Usage,
			Metadata:       reply.Metadata,
		}
		_ = agg.Fold(&ev)
	}

	agg.Drain()
	usage := s.estimator.Estimate(agg.UsageInput())
	conversationID := s.commit(ctx, req, provider.Name(), agg, usage, outcome)
	agg.Close()

	if chatErr != nil {
		return nil, fmt.Errorf("chat failed: %w", chatErr)
	}

	return &ChatResult{
		Event:          EventMessage,
		Content:        agg.Transcript(),
		ConversationID: conversationID,
		MessageID:      agg.MessageID(),
		Provider:       provider.Name(),
		Usage:          usage,
		Metadata:       reply.Metadata,
		FinishTime:     time.Now(),
	}, nil
}

// History returns the upstream message history of a conversation.
func (s *ChatService) History(ctx context.Context, req *HistoryRequest) (json.RawMessage, error) {
	if err := validateHistoryRequest(req); err != nil {
		return nil, err
	}

	provider, err := s.providerFor(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	history, err := provider.History(observability.WithProvider(ctx, provider.Name()), req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}

	return history, nil
}

// DeleteConversation removes an upstream conversation.
func (s *ChatService) DeleteConversation(ctx context.Context, req *HistoryRequest) error {
	if err := validateHistoryRequest(req); err != nil {
		return err
	}

	provider, err := s.providerFor(ctx, req.AgentID)
	if err != nil {
		return err
	}

	if err := provider.DeleteConversation(observability.WithProvider(ctx, provider.Name()), req); err != nil {
		return fmt.Errorf("conversation delete failed: %w", err)
	}

	return nil
}

func validateHistoryRequest(req *HistoryRequest) error {
	switch {
	case req == nil:
		return &ValidationError{Field: "request", Reason: "cannot be nil"}
	case req.ConversationID == "":
		return &ValidationError{Field: "conversation_id", Reason: "is required"}
	case req.UserID <= 0:
		return &ValidationError{Field: "user_id", Reason: "is required"}
	case req.AgentID <= 0:
		return &ValidationError{Field: "agent_id", Reason: "is required"}
	}
	return nil
}

func (s *ChatService) providerFor(ctx context.Context, agentID int64) (Provider, error) {
	name, err := s.router.Route(ctx, &RouteRequest{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	provider, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	return provider, nil
}

func (s *ChatService) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.settings.StreamTimeout > 0 {
		return context.WithTimeoutCause(ctx, s.settings.StreamTimeout, errStreamTimeout)
	}
	return context.WithCancel(ctx)
}

// commit persists the consolidated turn exactly once. Failures are logged and
// published, never returned. It reports the conversation id the turn was stored under.
func (s *ChatService) commit(
	ctx context.Context,
	req *ChatRequest,
	providerName string,
	agg *Aggregator,
	usage Usage,
	outcome string,
) string {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = agg.ConversationID()
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = observability.GetRequestID(ctx)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	now := time.Now().UTC()
	user := &UserTurn{
		ConversationID: conversationID,
		RequestID:      requestID,
		UserID:         req.UserID,
		MerchantID:     req.MerchantID,
		AgentID:        req.AgentID,
		Content:        req.EffectiveQuery(),
		CreatedAt:      now,
	}
	agent := &AgentTurn{
		ConversationID:         conversationID,
		UpstreamConversationID: agg.ConversationID(),
		UpstreamMessageID:      agg.MessageID(),
		Provider:               providerName,
		Content:                agg.Transcript(),
		LifecycleEvents:        agg.LifecycleEvents(),
		ReasoningEvents:        agg.ReasoningEvents(),
		OtherEvents:            agg.OtherEvents(),
		Usage:                  usage,
		Outcome:                outcome,
		CreatedAt:              now,
	}
	if streamErr := agg.StreamError(); streamErr != nil {
		agent.Error = streamErr.Message
		if agent.Error == "" {
			agent.Error = streamErr.Code
		}
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.PersistTimeout)
	defer cancel()

	logger := observability.FromContext(ctx).With(observability.String("conversation_id", conversationID))
	data := map[string]interface{}{
		"conversation_id": conversationID,
		"request_id":      requestID,
		"provider":        providerName,
		"outcome":         outcome,
		"total_tokens":    usage.TotalTokens,
		"cost":            usage.Cost,
	}

	err := s.store.Commit(commitCtx, user, agent)
	switch {
	case err == nil:
		s.publisher.Publish(commitCtx, EventTurnCommitted, data)
	case errors.Is(err, ErrDuplicateCommit):
		logger.Info("turn already committed, skipping")
	default:
		perr := &PersistenceError{ConversationID: conversationID, Err: err}
		logger.Error("failed to commit turn", observability.Error(perr))
		data["error"] = perr.Error()
		s.publisher.Publish(commitCtx, EventTurnCommitFailed, data)
	}

	return conversationID
}

// ConversationTitle derives a conversation title from the first query.
func ConversationTitle(query string) string {
	runes := []rune(query)
	if len(runes) > conversationTitleLength {
		runes = runes[:conversationTitleLength]
	}
	return string(runes)
}
