package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"referee-agent/internal/domain"
	"referee-agent/internal/usecase"
)

// TurnUseCase is the turn-processing contract consumed by the handler.
type TurnUseCase interface {
	HandleTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

// turnRequest is the inbound API Gateway body: a session plus a batch of
// role/parts messages. Parts of unknown kinds are carried through and ignored
// during extraction.
type turnRequest struct {
	SessionID string                  `json:"sessionId"`
	Messages  []domain.InboundMessage `json:"messages"`
}

type answerResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId"`
}

type clearedResponse struct {
	Status    string `json:"status"`
	Deleted   int    `json:"deleted"`
	SessionID string `json:"sessionId"`
}

type noOpResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler adapts API Gateway proxy events to the turn use case.
type Handler struct {
	uc TurnUseCase
}

func NewHandler(uc TurnUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationID(event.Headers)

	var req turnRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(http.StatusBadRequest, correlationID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "malformed_body",
		}), nil
	}

	out, err := h.uc.HandleTurn(ctx, usecase.TurnInput{
		SessionID: req.SessionID,
		Messages:  req.Messages,
	})
	if err != nil {
		status, body := mapError(err)
		slog.Error("turn failed", "correlationId", correlationID, "code", body.Error, "reason", body.Reason)
		return respond(status, correlationID, body), nil
	}

	switch out.Status {
	case usecase.StatusCleared:
		return respond(http.StatusOK, correlationID, clearedResponse{
			Status:    string(out.Status),
			Deleted:   out.Deleted,
			SessionID: out.SessionID,
		}), nil
	case usecase.StatusNoOp:
		return respond(http.StatusOK, correlationID, noOpResponse{
			Status:    string(out.Status),
			Reason:    out.Reason,
			SessionID: out.SessionID,
		}), nil
	default:
		return respond(http.StatusOK, correlationID, answerResponse{
			Answer:    out.Answer,
			SessionID: out.SessionID,
		}), nil
	}
}

// mapError translates a usecase error into an HTTP status and body. Unknown
// errors are reported as internal without leaking detail.
func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}

	body := errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

// correlationID returns the caller-provided correlation ID, matched
// case-insensitively, or generates one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: string(raw),
	}
}
