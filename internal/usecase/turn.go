package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"referee-agent/internal/domain"
)

const (
	defaultContextMessages = 15
	defaultStoredMessages  = 100
	defaultMaxMessageLen   = 500

	// clearCommand is the reserved sentinel. A system-role inbound message
	// whose extracted text equals it exactly deletes the session log instead
	// of producing an answer.
	clearCommand = "(clear requested)"
)

// TurnStatus reports the outcome of a turn.
type TurnStatus string

const (
	StatusAnswered TurnStatus = "answered"
	StatusCleared  TurnStatus = "cleared"
	StatusNoOp     TurnStatus = "no_op"
)

// Skip reasons carried on StatusNoOp outcomes.
const (
	ReasonEmptyInbound     = "empty_inbound"
	ReasonDuplicateInbound = "duplicate_inbound"
	ReasonNonUserInbound   = "non_user_inbound"
)

type ParamGetter interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

// LogStore is the conversation log persistence contract. GetLog returns an
// empty log for sessions that have never been written.
type LogStore interface {
	GetLog(ctx context.Context, sessionID string) ([]domain.Message, error)
	PutLog(ctx context.Context, sessionID string, log []domain.Message) error
	DeleteLog(ctx context.Context, sessionID string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// TurnService processes one conversation turn at a time. It holds no
// per-session state between calls; each turn is computed from the persisted
// log snapshot. Concurrent turns for the same session require external
// serialization.
type TurnService struct {
	params          ParamGetter
	llm             LLMClient
	store           LogStore
	paramPrefix     string
	contextMessages int
	storedMessages  int
	maxMessageLen   int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	persona     string
	model       string
}

type TurnInput struct {
	SessionID string
	Messages  []domain.InboundMessage
}

type TurnOutput struct {
	Status    TurnStatus
	Reason    string
	Answer    string
	SessionID string
	Deleted   int
}

func NewTurnService(p ParamGetter, llm LLMClient, store LogStore, paramPrefix string, contextMessages, storedMessages, maxMessageLen int) (*TurnService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: log store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if contextMessages <= 0 {
		contextMessages = defaultContextMessages
	}
	if storedMessages <= 0 {
		storedMessages = defaultStoredMessages
	}
	if storedMessages < contextMessages {
		return nil, errors.New("usecase: storage cap must not be below the context cap")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &TurnService{
		params:          p,
		llm:             llm,
		store:           store,
		paramPrefix:     paramPrefix,
		contextMessages: contextMessages,
		storedMessages:  storedMessages,
		maxMessageLen:   maxMessageLen,
	}, nil
}

// HandleTurn runs one inbound-to-answer cycle: select and validate the
// inbound message, short-circuit the clear sentinel, window the log for
// context, invoke the model, then append the exchange and persist the
// trimmed log.
func (s *TurnService) HandleTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	inbound, text, ok := selectLatestInbound(in.Messages)
	if !ok {
		return TurnOutput{Status: StatusNoOp, Reason: ReasonEmptyInbound, SessionID: sessionID}, nil
	}

	if inbound.Role == domain.RoleSystem && text == clearCommand {
		return s.clearLog(ctx, sessionID)
	}
	if inbound.Role != domain.RoleUser {
		return TurnOutput{Status: StatusNoOp, Reason: ReasonNonUserInbound, SessionID: sessionID}, nil
	}
	if len(text) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	log, err := s.store.GetLog(ctx, sessionID)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "dynamodb_history_error", err)
	}
	if isDuplicate(log, text) {
		return TurnOutput{Status: StatusNoOp, Reason: ReasonDuplicateInbound, SessionID: sessionID}, nil
	}

	if err := s.ensureConfig(ctx); err != nil {
		return TurnOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	flagged, err := s.llm.Moderate(ctx, text)
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return TurnOutput{}, newError(ErrorRateLimited, "moderation_rate_limited", err)
		}
		return TurnOutput{}, newError(ErrorUpstream, "moderation_error", err)
	}
	if flagged {
		return TurnOutput{}, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
	}

	window := windowForContext(log, s.contextMessages)
	answer, err := s.llm.Chat(ctx, s.model, buildPromptMessages(s.persona, window, text))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return TurnOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return TurnOutput{}, newError(ErrorUpstream, "openai_error", err)
	}

	now := timeNow()
	userMsg, err := newStoredMessage(domain.RoleUser, text, now)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "message_conversion_error", err)
	}
	assistantMsg, err := newStoredMessage(domain.RoleAssistant, answer, now)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "message_conversion_error", err)
	}

	updated := appendExchange(log, userMsg, assistantMsg, s.storedMessages)
	if err := s.store.PutLog(ctx, sessionID, updated); err != nil {
		return TurnOutput{}, newError(ErrorInternal, "dynamodb_write_error", err)
	}

	return TurnOutput{
		Status:    StatusAnswered,
		Answer:    strings.TrimSpace(answer),
		SessionID: sessionID,
	}, nil
}

// clearLog deletes the whole session log and acknowledges with the number of
// entries removed. The model is never invoked on this path.
func (s *TurnService) clearLog(ctx context.Context, sessionID string) (TurnOutput, error) {
	log, err := s.store.GetLog(ctx, sessionID)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "dynamodb_history_error", err)
	}
	if err := s.store.DeleteLog(ctx, sessionID); err != nil {
		return TurnOutput{}, newError(ErrorInternal, "dynamodb_delete_error", err)
	}
	return TurnOutput{Status: StatusCleared, SessionID: sessionID, Deleted: len(log)}, nil
}

func (s *TurnService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	personaName := s.paramPrefix + "/persona"
	modelName := s.paramPrefix + "/config/openai_model"
	vals, err := s.params.GetParameters(ctx, []string{personaName, modelName})
	if err != nil {
		return err
	}
	persona := strings.TrimSpace(vals[personaName])
	model := strings.TrimSpace(vals[modelName])
	if persona == "" {
		return errors.New("usecase: persona parameter is empty")
	}
	if model == "" {
		return errors.New("usecase: model parameter is empty")
	}

	s.persona = persona
	s.model = model
	s.cacheLoaded = true
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var (
	newUUID = func() string { return uuid.NewString() }
	timeNow = func() time.Time { return time.Now().UTC() }
)
