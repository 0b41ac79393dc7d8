package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/attendai-core/internal/auth"
	"github.com/nerrad567/attendai-core/internal/infrastructure/database"
	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/session"
	"github.com/nerrad567/attendai-core/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{EventType: "session.signed_in", UserID: 7, Username: "jdoe", Role: "teacher", CreatedAt: base},
		{EventType: "session.refreshed", Username: "jdoe", DurationMS: 42, CreatedAt: base.Add(time.Minute)},
		{EventType: "session.expired", Username: "jdoe", Detail: "refresh rejected", CreatedAt: base.Add(2 * time.Minute)},
		{EventType: "session.signed_in", UserID: 3, Username: "asmith", Role: "admin", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all, newest first", Filter{}, 4, "asmith"},
		{"by type", Filter{EventType: "session.signed_in"}, 2, "asmith"},
		{"by username", Filter{Username: "jdoe"}, 3, "jdoe"},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 2, "asmith"},
		{"paged", Filter{Limit: 1, Offset: 1}, 4, "jdoe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) == 0 || res.Entries[0].Username != tt.wantFirst {
				t.Fatalf("first entry = %+v, want username %q", res.Entries, tt.wantFirst)
			}
		})
	}

	res, _ := repo.List(ctx, Filter{EventType: "session.refreshed"})
	got := res.Entries[0]
	if got.DurationMS != 42 || !got.CreatedAt.Equal(base.Add(time.Minute)) || got.UserID != 0 {
		t.Errorf("round-tripped entry = %+v", got)
	}
}

func TestSQLiteRepository_ListClampsLimit(t *testing.T) {
	res, err := testRepo(t).List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatal(err)
	}
	if res.Limit != 200 || res.Offset != 0 || res.Entries == nil {
		t.Errorf("List() = %+v, want limit 200, offset 0, empty slice", res)
	}
}

func TestSQLiteRepository_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	now := time.Now().UTC()

	for _, age := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		if err := repo.Create(ctx, &Entry{EventType: "session.refreshed", CreatedAt: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	res, _ := repo.List(ctx, Filter{})
	if res.Total != 2 {
		t.Errorf("remaining = %d, want 2", res.Total)
	}
}

func TestRecorder(t *testing.T) {
	repo := testRepo(t)
	rec := NewRecorder(repo, logging.Discard(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	user := &auth.User{ID: 7, Role: auth.RoleTeacher, Username: "jdoe"}
	rec.OnSessionEvent(session.Event{ID: "e1", Type: session.EventSignedIn, At: time.Now(), User: user, Redirect: "/teacher"})
	rec.OnSessionEvent(session.Event{ID: "e2", Type: session.EventLoggedOut, At: time.Now(), Username: "jdoe"})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res, err := repo.List(context.Background(), Filter{Username: "jdoe"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Total)
	}
	signIn, _ := repo.List(context.Background(), Filter{EventType: string(session.EventSignedIn)})
	if e := signIn.Entries[0]; e.UserID != 7 || e.Role != "teacher" || e.Detail != "redirect /teacher" {
		t.Errorf("signed_in entry = %+v", e)
	}
}

type blockedRepo struct{ Repository }

func TestRecorder_DropsWhenFull(t *testing.T) {
	rec := NewRecorder(blockedRepo{}, logging.Discard(), 1)

	rec.OnSessionEvent(session.Event{Type: session.EventRefreshed})
	rec.OnSessionEvent(session.Event{Type: session.EventRefreshed})
	rec.OnSessionEvent(session.Event{Type: session.EventRefreshed})

	if got := rec.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}
