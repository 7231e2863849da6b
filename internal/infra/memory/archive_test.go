package memory

import (
	"context"
	"testing"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

func TestArchiveSaveLoad(t *testing.T) {
	archive := NewArchive()

	if _, found, err := archive.Load(context.Background()); err != nil || found {
		t.Fatalf("expected empty archive, found=%v err=%v", found, err)
	}

	state := app.ArchivedState{
		State:        domain.SessionState{CurrentIndex: 1, Reveal: true},
		Participants: []domain.Participant{{ID: "p1", Name: "Alice"}},
	}
	if err := archive.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := archive.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if loaded.State.CurrentIndex != 1 || !loaded.State.Reveal || len(loaded.Participants) != 1 {
		t.Fatalf("unexpected archived state %+v", loaded)
	}
}
