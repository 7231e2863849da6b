package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/infra/memory"
)

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) domain.StateSnapshot {
	t.Helper()
	var msg StateMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "state" {
		t.Fatalf("expected state frame, got %s", msg.Type)
	}
	return msg.Payload
}

func TestWebSocketSnapshotStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	session := app.NewSession(sampleQuiz())
	service := app.NewService(session, memory.NewArchive(), zerolog.Nop())
	server := httptest.NewServer(NewRouter(service, testAdminToken, zerolog.Nop()))
	defer server.Close()

	conn := dialWS(t, server)

	// The first frame arrives without any command: the current snapshot.
	snap := readState(t, conn)
	if snap.State.CurrentIndex != -1 || snap.Question != nil {
		t.Fatalf("expected not-started snapshot, got %+v", snap)
	}
	if snap.TotalQuestions != 2 {
		t.Fatalf("expected 2 total questions, got %d", snap.TotalQuestions)
	}

	ctx := context.Background()
	if _, err := service.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap = readState(t, conn)
	if snap.State.CurrentIndex != 0 || snap.Question == nil || snap.Question.ID != 1 {
		t.Fatalf("expected first question snapshot, got %+v", snap)
	}
	if snap.Question.CorrectIndex != nil {
		t.Fatalf("correct index leaked before reveal")
	}

	// A participant joining is broadcast too.
	if _, err := service.Join(ctx, "Dana"); err != nil {
		t.Fatalf("join: %v", err)
	}
	snap = readState(t, conn)
	if snap.State.CurrentIndex != 0 {
		t.Fatalf("expected same question after join, got %+v", snap)
	}

	if _, err := service.Reveal(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	snap = readState(t, conn)
	if !snap.State.Reveal || snap.Question.CorrectIndex == nil || *snap.Question.CorrectIndex != 1 {
		t.Fatalf("expected revealed snapshot, got %+v", snap)
	}
	if snap.RemainingSeconds != nil {
		t.Fatalf("expected no countdown while revealed, got %v", snap.RemainingSeconds)
	}
}

func TestWebSocketFanOut(t *testing.T) {
	gin.SetMode(gin.TestMode)
	session := app.NewSession(sampleQuiz())
	service := app.NewService(session, memory.NewArchive(), zerolog.Nop())
	server := httptest.NewServer(NewRouter(service, testAdminToken, zerolog.Nop()))
	defer server.Close()

	first := dialWS(t, server)
	second := dialWS(t, server)
	readState(t, first)
	readState(t, second)

	if _, err := service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, conn := range []*websocket.Conn{first, second} {
		snap := readState(t, conn)
		if snap.State.CurrentIndex != 0 {
			t.Fatalf("expected both clients to see the new question, got %+v", snap)
		}
	}

	// A client that connects mid-session observes correct state immediately.
	late := dialWS(t, server)
	snap := readState(t, late)
	if snap.State.CurrentIndex != 0 || snap.Question == nil {
		t.Fatalf("expected late joiner to get the live snapshot, got %+v", snap)
	}
}
