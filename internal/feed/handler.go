package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/server"
	"github.com/gokatarajesh/pairwise/internal/storage"
	httperrors "github.com/gokatarajesh/pairwise/pkg/http/errors"
	ws "github.com/gokatarajesh/pairwise/pkg/http/ws"
)

// Handler serves GET /ws/questions/{id}.
type Handler struct {
	hub    *ws.Hub
	store  storage.Store
	logger zerolog.Logger
}

// NewHandler creates the question feed WebSocket handler.
func NewHandler(hub *ws.Hub, store storage.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		store:  store,
		logger: logger.With().Str("component", "question_feed").Logger(),
	}
}

// HandleWebSocket upgrades the request and subscribes the connection to the
// question in the path. The current counters are sent right away.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidQuestion, "Invalid question id")
		return
	}
	snapshot, err := h.snapshot(r.Context(), questionID)
	if err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuestionNotFound, "Question not found")
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.New()
	c := ws.NewConnection(conn, h.logger.With().Str("conn_id", connID.String()).Logger())
	h.hub.RegisterConnection(connID, c)
	h.hub.Subscribe(questionID, connID)
	defer h.hub.UnregisterConnection(connID)

	go c.WritePump()
	if err := c.Send(snapshot); err != nil {
		h.logger.Warn().Err(err).Msg("initial snapshot send failed")
	}

	c.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(connID, msg)
	})
}

func (h *Handler) handleMessage(connID uuid.UUID, msg ws.Message) error {
	switch msg.Type {
	case ws.TypePing:
		return h.hub.Send(connID, ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
	case ws.TypeSubscribe, ws.TypeUnsubscribe:
		var p ws.SubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return h.sendError(connID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "invalid subscribe payload")
		}
		questionID, err := uuid.Parse(p.QuestionID)
		if err != nil {
			return h.sendError(connID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "invalid question id")
		}
		if msg.Type == ws.TypeUnsubscribe {
			h.hub.Unsubscribe(questionID, connID)
			return nil
		}
		snapshot, err := h.snapshot(context.Background(), questionID)
		if err != nil {
			return h.sendError(connID, msg.RequestID, httperrors.ErrCodeQuestionNotFound, "question not found")
		}
		h.hub.Subscribe(questionID, connID)
		snapshot.RequestID = msg.RequestID
		return h.hub.Send(connID, snapshot)
	default:
		return h.sendError(connID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) snapshot(ctx context.Context, questionID uuid.UUID) (ws.Message, error) {
	var msg ws.Message
	err := h.store.InTx(ctx, func(tx storage.Tx) error {
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		msg, err = ws.NewMessage(ws.TypeQuestionStats, toPayload(q.Stats()))
		return err
	})
	return msg, err
}

func (h *Handler) sendError(connID uuid.UUID, requestID, code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.hub.Send(connID, msg)
}
