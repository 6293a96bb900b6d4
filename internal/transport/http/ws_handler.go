package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// WSHandler streams the countdown of one attempt and accepts drafts, runs and the final submit over a socket.
type WSHandler struct {
	attempts *app.AttemptService
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(attempts *app.AttemptService, tick time.Duration) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		attempts: attempts,
		tick:     tick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type tickPayload struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
}

type savedPayload struct {
	QuestionID string `json:"questionId"`
}

// ServeWS upgrades the request and runs the attempt session until the client leaves or the attempt ends.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := mux.Vars(r)["id"]
	actor, _ := ActorFromContext(r.Context())

	attempt, left, err := h.attempts.Remaining(r.Context(), attemptID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if attempt.StudentID != actor.ID {
		respondErr(w, domain.ErrAttemptNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})
	var finished atomic.Bool

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn("ws write error", slog.String("attempt_id", attemptID), slog.Any("err", err))
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		case <-writerDone:
			return false
		}
	}
	// finish sends the result once, whichever of the countdown or the client gets there first.
	finish := func(trigger domain.SubmitTrigger) {
		if finished.Load() {
			return
		}
		result, err := h.attempts.Submit(r.Context(), attemptID, trigger)
		if err != nil {
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		if finished.CompareAndSwap(false, true) {
			emit(outboundMessage[any]{Type: "result", Payload: result})
		}
	}

	send <- outboundMessage[any]{Type: "state", Payload: attempt}
	if attempt.Status.Terminal() {
		finish(attempt.Trigger)
	} else {
		send <- outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingSeconds: int64(left / time.Second)}}
	}

	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if finished.Load() {
					return
				}
				_, left, err := h.attempts.Remaining(r.Context(), attemptID)
				if err != nil {
					logger.Warn("ws remaining", slog.String("attempt_id", attemptID), slog.Any("err", err))
					continue
				}
				if !emit(outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingSeconds: int64(left / time.Second)}}) {
					return
				}
				if left == 0 {
					finish(domain.TriggerTimeout)
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "draft":
			var payload draftRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid draft payload"}})
				continue
			}
			if err := h.attempts.SaveDraft(r.Context(), attemptID, actor.ID, payload.QuestionID, payload.Language, payload.Answer); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			emit(outboundMessage[any]{Type: "saved", Payload: savedPayload{QuestionID: payload.QuestionID}})
		case "run":
			var payload runRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid run payload"}})
				continue
			}
			report, err := h.attempts.RunTests(r.Context(), attemptID, actor.ID, payload.QuestionID, payload.Code, payload.Language)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			emit(outboundMessage[any]{Type: "runResult", Payload: report})
		case "submit":
			finish(domain.TriggerManual)
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-tickerDone
	close(send)
	<-writerDone
}
