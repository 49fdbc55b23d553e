package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/reprobench/cidb-client/internal/testutil"
)

func TestPatchUsesCurrentEtag(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.Seed("artifacts", testutil.Entity{"_id": "a-b-1", "stability": 0.2})

	c := newTestClient(t, mock)

	resp, err := c.SetArtifactStability(context.Background(), "a-b-1", 0.9)
	if err != nil {
		t.Fatalf("SetArtifactStability() error = %v", err)
	}
	if !resp.OK() {
		t.Fatalf("patch status = %d, want 2xx (mock enforces If-Match)", resp.StatusCode)
	}

	got := mock.Get("artifacts", "a-b-1")
	if got["stability"] != 0.9 {
		t.Errorf("stability after patch = %v, want 0.9", got["stability"])
	}
	if got["_etag"] == "etag-1" {
		t.Error("etag should change after a successful patch")
	}
}

func TestPatchMissingEtag(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	// Entity document without an _etag field.
	mock.SetHandler("/artifacts/broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_id": "broken"}`))
	})

	c := newTestClient(t, mock)

	_, err := c.PatchArtifact(context.Background(), "broken", Entity{"lang": "Java"})
	if !errors.Is(err, ErrMissingEtag) {
		t.Errorf("PatchArtifact() error = %v, want ErrMissingEtag", err)
	}
}

func TestPatchStaleEtagRejected(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	// Emulate a concurrent writer: the GET hands out an etag that is
	// already outdated by the time the PATCH arrives.
	mock.SetHandler("/artifacts/contended", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"_id": "contended", "_etag": "stale"}`))
		case http.MethodPatch:
			w.WriteHeader(http.StatusPreconditionFailed)
		}
	})

	c := newTestClient(t, mock)

	resp, err := c.PatchArtifact(context.Background(), "contended", Entity{"lang": "Java"})
	if err != nil {
		t.Fatalf("PatchArtifact() error = %v, want nil (HTTP failure is not a Go error)", err)
	}
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", resp.StatusCode)
	}
}

func TestDelete(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.Seed("emailSubscribers", testutil.Entity{"_id": "user@example.com"})

	c := newTestClient(t, mock)

	resp, err := c.UnsubscribeEmailSubscriber(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("UnsubscribeEmailSubscriber() error = %v", err)
	}
	if !resp.OK() {
		t.Fatalf("delete status = %d, want 2xx", resp.StatusCode)
	}
	if n := mock.Count("emailSubscribers"); n != 0 {
		t.Errorf("subscribers after delete = %d, want 0", n)
	}
}

func TestUpsertCreatesMissingEntity(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	c := newTestClient(t, mock)

	project := Entity{"repo": "apache/commons-lang", "progression_metrics": Entity{}}
	resp, err := c.UpsertMinedProject(context.Background(), project)
	if err != nil {
		t.Fatalf("UpsertMinedProject() error = %v", err)
	}
	if !resp.OK() {
		t.Fatalf("upsert status = %d, want 2xx", resp.StatusCode)
	}
	if n := mock.Count("minedProjects"); n != 1 {
		t.Errorf("projects after upsert = %d, want 1", n)
	}
}

func TestUpsertReplacesExistingEntity(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.Seed("minedProjects", testutil.Entity{"_id": "apache/commons-lang", "repo": "apache/commons-lang", "stale": true})

	c := newTestClient(t, mock)

	project := Entity{"repo": "apache/commons-lang"}
	resp, err := c.UpsertMinedProject(context.Background(), project)
	if err != nil {
		t.Fatalf("UpsertMinedProject() error = %v", err)
	}
	if !resp.OK() {
		t.Fatalf("upsert status = %d, want 2xx", resp.StatusCode)
	}

	got := mock.Get("minedProjects", "apache/commons-lang")
	if _, stale := got["stale"]; stale {
		t.Error("replaced entity should not keep old fields")
	}
	if n := mock.Count("minedProjects"); n != 1 {
		t.Errorf("projects after upsert = %d, want 1", n)
	}
}

func TestInsertValidationRejectReturned(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.RejectWrites["artifacts"] = true

	c := newTestClient(t, mock)

	resp, err := c.InsertArtifact(context.Background(), Entity{"image_tag": "x"})
	if err != nil {
		t.Fatalf("InsertArtifact() error = %v, want nil (422 is reported via status)", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestInsertNilEntity(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	c := newTestClient(t, mock)

	if _, err := c.InsertArtifact(context.Background(), nil); !errors.Is(err, ErrNilEntity) {
		t.Errorf("InsertArtifact(nil) error = %v, want ErrNilEntity", err)
	}
}

func TestUpsertMinedProjectRequiresRepo(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	c := newTestClient(t, mock)

	if _, err := c.UpsertMinedProject(context.Background(), Entity{"lang": "Java"}); err == nil {
		t.Error("UpsertMinedProject() without repo field should fail")
	}
}

func TestSetArtifactCurrentStatusValidation(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.Seed("artifacts", testutil.Entity{"_id": "a-b-1"})

	c := newTestClient(t, mock)
	ctx := context.Background()

	tests := []struct {
		status  string
		date    string
		wantErr bool
	}{
		{"Reproducible", "2026-08-31", false},
		{"Flaky", "2026-01-02", false},
		{"Working", "2026-08-31", true},
		{"Reproducible", "31-08-2026", true},
		{"Reproducible", "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.status, tt.date), func(t *testing.T) {
			_, err := c.SetArtifactCurrentStatus(ctx, "a-b-1", tt.status, tt.date)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetArtifactCurrentStatus(%q, %q) error = %v, wantErr %v", tt.status, tt.date, err, tt.wantErr)
			}
		})
	}
}
