package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
)

// WSHandler is a minimal play channel over websockets: the same boundary
// operations the chat bot consumes, plus a live leaderboard feed. The bot
// transport itself stays outside this repository.
type WSHandler struct {
	service  *game.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *game.Service) *WSHandler {
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	QuestionID int64  `json:"questionId"`
	VariantID  string `json:"variantId"`
}

type hintRequestPayload struct {
	Kind       string `json:"kind"`
	QuestionID int64  `json:"questionId"`
}

type contactPayload struct {
	Text    string `json:"text"`
	Restart bool   `json:"restart"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// variantView hides the correctness flag from clients.
type variantView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID       int64         `json:"id"`
	Text     string        `json:"text"`
	Variants []variantView `json:"variants"`
}

type progressionView struct {
	State    domain.State    `json:"state"`
	Prompts  []domain.Prompt `json:"prompts"`
	Question *questionView   `json:"question,omitempty"`
}

type answerResultView struct {
	Outcome  domain.AnswerOutcome `json:"outcome"`
	Tries    int                  `json:"tries"`
	State    domain.State         `json:"state"`
	Question *questionView        `json:"question,omitempty"`
}

type hintResultView struct {
	Granted      bool           `json:"granted"`
	Kind         string         `json:"kind"`
	Variants     []variantView  `json:"variants,omitempty"`
	Distribution map[string]int `json:"distribution,omitempty"`
	TotalAnswers int            `json:"totalAnswers,omitempty"`
}

// ServeWS upgrades the connection and wires it into the game use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	name := r.URL.Query().Get("name")
	if playerID == "" || name == "" {
		http.Error(w, "missing playerId or name", http.StatusBadRequest)
		return
	}
	chatID, _ := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if _, _, err := h.service.GetOrCreatePlayer(r.Context(), playerID, name, chatID); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context())
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if prog, err := h.service.Advance(r.Context(), playerID); err == nil {
		send <- outboundMessage[any]{Type: "progression", Payload: toProgressionView(prog)}
	} else {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			prog, err := h.service.Advance(r.Context(), playerID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: userMessage(err)}}
				continue
			}
			send <- outboundMessage[any]{Type: "progression", Payload: toProgressionView(prog)}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			result, err := h.service.SubmitAnswer(r.Context(), playerID, payload.QuestionID, payload.VariantID, time.Now())
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: userMessage(err)}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResultView{
				Outcome:  result.Outcome,
				Tries:    result.Answer.Tries,
				State:    result.Player.State,
				Question: toQuestionView(result.Next),
			}}
		case "hint":
			var payload hintRequestPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid hint payload"}}
				continue
			}
			outcome, err := h.service.RequestHint(r.Context(), playerID, payload.Kind, payload.QuestionID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: userMessage(err)}}
				continue
			}
			send <- outboundMessage[any]{Type: "hintResult", Payload: toHintResultView(outcome)}
		case "contact":
			var payload contactPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid contact payload"}}
				continue
			}
			prog, err := h.service.SubmitContact(r.Context(), playerID, payload.Text, payload.Restart)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: userMessage(err)}}
				continue
			}
			send <- outboundMessage[any]{Type: "progression", Payload: toProgressionView(prog)}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// userMessage keeps unexpected failures generic; the player only ever sees a
// retry prompt, never partial state.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrUnknownHintKind),
		errors.Is(err, domain.ErrPlayerNotFound):
		return err.Error()
	default:
		log.Printf("ws request failed: %v", err)
		return "something went wrong, please try again"
	}
}

func toQuestionView(q *domain.Question) *questionView {
	if q == nil {
		return nil
	}
	view := &questionView{ID: q.ID, Text: q.Text, Variants: make([]variantView, 0, len(q.Variants))}
	for _, v := range q.Variants {
		view.Variants = append(view.Variants, variantView{ID: v.ID, Text: v.Text})
	}
	return view
}

func toProgressionView(p game.Progression) progressionView {
	return progressionView{
		State:    p.Player.State,
		Prompts:  p.Prompts,
		Question: toQuestionView(p.Next),
	}
}

func toHintResultView(outcome domain.HintOutcome) hintResultView {
	view := hintResultView{
		Granted:      outcome.Granted,
		Kind:         outcome.Kind,
		Distribution: outcome.Payload.Distribution,
		TotalAnswers: outcome.Payload.TotalAnswers,
	}
	for _, v := range outcome.Payload.Variants {
		view.Variants = append(view.Variants, variantView{ID: v.ID, Text: v.Text})
	}
	return view
}
