package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-ladder-service/internal/catalog"
	"quiz-ladder-service/internal/domain"
	"quiz-ladder-service/internal/game"
	"quiz-ladder-service/internal/infra/memory"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	conn := dialWS(t, server, "u1", "Alice")
	defer conn.Close()

	// Connecting advances the player: greeting plus the first question. The
	// primed leaderboard snapshot may land before or after it.
	payload := readUntil(conn, t, "progression")
	if payload["state"] != string(domain.StatePlay) {
		t.Fatalf("expected PLAY on connect, got %v", payload["state"])
	}
	question, ok := payload["question"].(map[string]any)
	if !ok {
		t.Fatalf("expected a question in the progression payload, got %v", payload)
	}
	if question["id"] != float64(1) {
		t.Fatalf("expected question 1, got %v", question["id"])
	}
	variants, ok := question["variants"].([]any)
	if !ok || len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %v", question["variants"])
	}
	for _, raw := range variants {
		if _, leaked := raw.(map[string]any)["correct"]; leaked {
			t.Fatalf("correctness flag must not reach clients: %v", raw)
		}
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": 1,
			"variantId":  "a",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	answerSeen := false
	leaderboardSeen := false
	for i := 0; i < 4; i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "answerResult":
			answerSeen = true
			if payload["outcome"] != string(domain.AnswerPassed) {
				t.Fatalf("expected a passed outcome, got %v", payload["outcome"])
			}
		case "leaderboard":
			leaderboardSeen = true
		}
		if answerSeen && leaderboardSeen {
			break
		}
	}
	if !answerSeen || !leaderboardSeen {
		t.Fatalf("expected answerResult and leaderboard, got answerResult=%v leaderboard=%v", answerSeen, leaderboardSeen)
	}
}

func TestWebSocketHintFlow(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	conn := dialWS(t, server, "u1", "Alice")
	defer conn.Close()

	readUntil(conn, t, "progression")

	hint := map[string]any{
		"type": "hint",
		"payload": map[string]any{
			"kind":       game.HintFifty,
			"questionId": 1,
		},
	}
	if err := conn.WriteJSON(hint); err != nil {
		t.Fatalf("write hint: %v", err)
	}
	payload := readUntil(conn, t, "hintResult")
	if payload["granted"] != true {
		t.Fatalf("first hint must be granted, got %v", payload)
	}

	if err := conn.WriteJSON(hint); err != nil {
		t.Fatalf("rewrite hint: %v", err)
	}
	payload = readUntil(conn, t, "hintResult")
	if payload["granted"] != false {
		t.Fatalf("second hint must be rejected, got %v", payload)
	}
}

func TestWebSocketRejectsMissingIdentity(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws?playerId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without a name, got %d", resp.StatusCode)
	}
}

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := newTestService(t)
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux)
}

func dialWS(t *testing.T, server *httptest.Server, playerID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?playerId=" + playerID + "&name=" + name + "&chatId=100"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

// readUntil skips unrelated frames (typically leaderboard pushes) until a
// frame of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 5; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == want {
			return payload
		}
	}
	t.Fatalf("no %s frame within 5 reads", want)
	return nil
}

func newTestService(t *testing.T) *game.Service {
	t.Helper()
	catalogs := catalog.NewLoaderRepository(memory.NewStaticCatalogLoader(map[int64][]domain.Question{
		1: {
			{ID: 1, Stage: 1, Text: "What is 2 + 2?", Weight: 1, Variants: []domain.Variant{
				{QuestionID: 1, ID: "a", Text: "4", Correct: true},
				{QuestionID: 1, ID: "b", Text: "5"},
			}},
			{ID: 2, Stage: 1, Text: "What is 3 * 3?", Weight: 2, Variants: []domain.Variant{
				{QuestionID: 2, ID: "a", Text: "9", Correct: true},
				{QuestionID: 2, ID: "b", Text: "6"},
			}},
		},
	}))
	store := memory.NewStore(catalogs)
	return game.NewService(store, catalogs, game.Config{RetryLimit: 2, HintLimit: 1})
}
