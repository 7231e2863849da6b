package agent

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
	transport "team-quiz-service/internal/transport/http"
)

func testQuiz() domain.Quiz {
	correct := 1
	return domain.Quiz{
		ID: "test",
		Questions: []domain.Question{
			{ID: 1, Text: "first", Options: []string{"a", "b", "c"}, CorrectIndex: &correct},
			{ID: 2, Text: "second", Options: []string{"x", "y"}},
		},
		DefaultTimeLimitSeconds: 30,
	}
}

type harness struct {
	service *app.Service
	agent   *Agent
	clock   *clockwork.FakeClock
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	anchor := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := app.NewSessionWithClock(testQuiz(), func() time.Time { return anchor })
	service := app.NewService(session, nil, zerolog.Nop())

	server := httptest.NewServer(transport.NewRouter(service, "secret", zerolog.Nop()))
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClock()
	a := New(Options{BaseURL: server.URL, Clock: clock, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Run(ctx) }()

	return &harness{service: service, agent: a, clock: clock, cancel: cancel}
}

// waitFor polls the agent view until cond holds or the deadline passes.
func waitFor(t *testing.T, a *Agent, what string, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v := a.View()
		if cond(v) {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last view %+v", what, a.View())
	return View{}
}

func TestAgentMirrorsBroadcasts(t *testing.T) {
	h := newHarness(t)

	v := waitFor(t, h.agent, "initial snapshot", func(v View) bool {
		return v.Status == StatusConnected && v.Snapshot != nil
	})
	if v.Snapshot.State.CurrentIndex != -1 || v.Snapshot.Question != nil {
		t.Fatalf("expected not-started mirror, got %+v", v.Snapshot)
	}

	if _, err := h.service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	v = waitFor(t, h.agent, "first question", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.QuestionID() == 1
	})
	if v.Snapshot.Question.CorrectIndex != nil {
		t.Fatalf("correct index leaked before reveal")
	}
	if v.Remaining == nil || *v.Remaining != 30 {
		t.Fatalf("expected countdown anchored at 30, got %v", v.Remaining)
	}

	if _, err := h.service.Reveal(context.Background()); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	v = waitFor(t, h.agent, "reveal", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.State.Reveal
	})
	if v.Snapshot.Question.CorrectIndex == nil || *v.Snapshot.Question.CorrectIndex != 1 {
		t.Fatalf("expected correct index after reveal, got %+v", v.Snapshot.Question)
	}
	if v.Remaining != nil {
		t.Fatalf("expected countdown suppressed during reveal, got %v", v.Remaining)
	}
}

func TestAgentLocalTick(t *testing.T) {
	h := newHarness(t)

	waitFor(t, h.agent, "connection", func(v View) bool {
		return v.Status == StatusConnected
	})
	if _, err := h.service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, h.agent, "countdown anchor", func(v View) bool {
		return v.Remaining != nil && *v.Remaining == 30
	})

	h.clock.BlockUntil(1)
	h.clock.Advance(time.Second)
	waitFor(t, h.agent, "local tick", func(v View) bool {
		return v.Remaining != nil && *v.Remaining == 29
	})
}

func TestAgentSubmitLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.agent.Join(ctx, "ava")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.ID == "" || h.agent.ParticipantID() != p.ID {
		t.Fatalf("expected identity installed, got %+v", p)
	}

	if _, err := h.service.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, h.agent, "first question", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.QuestionID() == 1
	})

	if err := h.agent.Submit(ctx, 1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := h.agent.View()
	if v.Answer.Phase != AnswerAccepted || v.Answer.Option != 1 {
		t.Fatalf("expected accepted answer, got %+v", v.Answer)
	}

	// Locked locally once accepted.
	if err := h.agent.Submit(ctx, 0); !errors.Is(err, domain.ErrAnswerLocked) {
		t.Fatalf("expected ErrAnswerLocked, got %v", err)
	}

	// A question change clears the submission state.
	if _, err := h.service.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	waitFor(t, h.agent, "second question", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.QuestionID() == 2 &&
			v.Answer.Phase == AnswerUnanswered
	})

	// Submissions are refused once the answer is revealed.
	if _, err := h.service.Reveal(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	waitFor(t, h.agent, "reveal", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.State.Reveal
	})
	if err := h.agent.Submit(ctx, 0); !errors.Is(err, domain.ErrAnswerClosed) {
		t.Fatalf("expected ErrAnswerClosed, got %v", err)
	}
}

func TestAgentServerRejectionRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.agent.Join(ctx, "ben")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := h.service.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, h.agent, "first question", func(v View) bool {
		return v.Snapshot != nil && v.Snapshot.QuestionID() == 1
	})

	// Another device already answered under the same identity, so the local
	// guard passes but the server rejects the duplicate.
	if _, err := h.service.SubmitAnswer(ctx, p.ID, 1, 2); err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	if err := h.agent.Submit(ctx, 0); err == nil {
		t.Fatalf("expected duplicate submission to fail")
	}
	v := h.agent.View()
	if v.Answer.Phase != AnswerRejected || v.Answer.Reason == "" {
		t.Fatalf("expected rejected rollback with reason, got %+v", v.Answer)
	}
}

func TestAgentReconnectsAfterServerDrop(t *testing.T) {
	anchor := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := app.NewSessionWithClock(testQuiz(), func() time.Time { return anchor })
	service := app.NewService(session, nil, zerolog.Nop())
	router := transport.NewRouter(service, "secret", zerolog.Nop())

	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	listener := &trackingListener{Listener: inner}
	addr := listener.Addr().String()
	server := httptest.NewUnstartedServer(router)
	server.Listener.Close()
	server.Listener = listener
	server.Start()

	clock := clockwork.NewFakeClock()
	a := New(Options{BaseURL: "http://" + addr, Clock: clock, Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Run(ctx) }()

	if _, err := service.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := waitFor(t, a, "first question", func(v View) bool {
		return v.Status == StatusConnected && v.Snapshot != nil && v.Snapshot.QuestionID() == 1
	})

	// Kill the server, listener first so the immediate redial cannot land.
	// The push channel dies and the agent waits out the backoff.
	// httptest stops tracking hijacked conns, so the websocket must be
	// severed through the listener's own accounting.
	server.Listener.Close()
	server.CloseClientConnections()
	server.Close()
	listener.CloseConns()
	waitFor(t, a, "disconnect", func(v View) bool {
		return v.Status == StatusDisconnected
	})
	// Two sleepers: the tick loop's ticker and the backoff timer.
	clock.BlockUntil(2)

	// Bring the server back on the same address, then release the backoff.
	relisten := listenRetry(t, addr)
	revived := httptest.NewUnstartedServer(router)
	revived.Listener.Close()
	revived.Listener = relisten
	revived.Start()
	t.Cleanup(func() {
		cancel()
		revived.CloseClientConnections()
		revived.Close()
	})

	clock.Advance(time.Second)

	// No admin command ran in between, so the re-mirrored snapshot matches
	// the one held before the drop.
	after := waitFor(t, a, "reconnect", func(v View) bool {
		return v.Status == StatusConnected && v.Snapshot != nil && v.Snapshot.QuestionID() == 1
	})
	if after.Snapshot.State.CurrentIndex != before.Snapshot.State.CurrentIndex ||
		after.Snapshot.State.Reveal != before.Snapshot.State.Reveal ||
		after.Snapshot.State.Finished != before.Snapshot.State.Finished {
		t.Fatalf("snapshot diverged across reconnect: %+v vs %+v", before.Snapshot.State, after.Snapshot.State)
	}
	if before.Snapshot.RemainingSeconds == nil || after.Snapshot.RemainingSeconds == nil ||
		*before.Snapshot.RemainingSeconds != *after.Snapshot.RemainingSeconds {
		t.Fatalf("remaining diverged across reconnect: %v vs %v",
			before.Snapshot.RemainingSeconds, after.Snapshot.RemainingSeconds)
	}
}

// trackingListener remembers accepted connections so the test can sever
// websocket conns that httptest no longer tracks once they are hijacked.
type trackingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, c)
		l.mu.Unlock()
	}
	return c, err
}

func (l *trackingListener) CloseConns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		c.Close()
	}
	l.conns = nil
}

func listenRetry(t *testing.T, addr string) net.Listener {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		l, err := net.Listen("tcp", addr)
		if err == nil {
			return l
		}
		if time.Now().After(deadline) {
			t.Fatalf("rebind %s: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAgentJoinConflictAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.agent.Join(ctx, "cara")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := h.agent.Join(ctx, "cara"); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, err := h.agent.Join(ctx, "   "); !errors.Is(err, domain.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	got, err := h.agent.Resume(ctx, p.ID)
	if err != nil || got.Name != "cara" {
		t.Fatalf("resume by id: %v %+v", err, got)
	}
	got, err = h.agent.Resume(ctx, "cara")
	if err != nil || got.ID != p.ID {
		t.Fatalf("resume by name: %v %+v", err, got)
	}

	h.agent.SetParticipant("ghost")
	if _, err := h.agent.Resume(ctx, "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if h.agent.ParticipantID() != "" {
		t.Fatalf("expected stale identity cleared")
	}
}
