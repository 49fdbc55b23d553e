package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/reprobench/cidb-client/internal/testutil"
)

func TestListAllFollowsNextLinks(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()
	mock.PageSize = 2

	mock.Seed("minedBuildPairs",
		testutil.Entity{"repo": "a/b", "n": 1},
		testutil.Entity{"repo": "a/b", "n": 2},
		testutil.Entity{"repo": "a/b", "n": 3},
	)

	c := newTestClient(t, mock)

	pairs, err := c.ListMinedBuildPairs(context.Background())
	if err != nil {
		t.Fatalf("ListMinedBuildPairs() error = %v", err)
	}

	if len(pairs) != 3 {
		t.Fatalf("items = %d, want 3", len(pairs))
	}
	// Page order is preserved.
	for i, p := range pairs {
		if int(p["n"].(float64)) != i+1 {
			t.Errorf("pairs[%d][n] = %v, want %d", i, p["n"], i+1)
		}
	}
	// 2 items + 1 item across two pages.
	if mock.RequestCount != 2 {
		t.Errorf("requests = %d, want 2", mock.RequestCount)
	}
}

func TestListAllEmptyCollection(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	c := newTestClient(t, mock)

	pairs, err := c.ListMinedBuildPairs(context.Background())
	if err != nil {
		t.Fatalf("ListMinedBuildPairs() error = %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("items = %d, want 0", len(pairs))
	}
}

func TestListAllStopsOnMissingItemsField(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	// A page document without an _items field ends traversal silently.
	mock.SetHandler("/minedBuildPairs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_links": {}, "_meta": {"total": 99}}`))
	})

	c := newTestClient(t, mock)

	pairs, err := c.ListMinedBuildPairs(context.Background())
	if err != nil {
		t.Fatalf("ListMinedBuildPairs() error = %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("items = %d, want 0", len(pairs))
	}
}

func TestListAllIterationCap(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	// A cyclic next-link chain that never terminates.
	mock.SetHandler("/minedBuildPairs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_items": [{"repo": "a/b"}], "_links": {"next": {"href": "/minedBuildPairs?page=2"}}}`))
	})

	cfg := DefaultConfig(mock.URL(), "test-token")
	cfg.MaxPages = 5
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	pairs, err := c.ListMinedBuildPairs(context.Background())
	if err != nil {
		t.Fatalf("ListMinedBuildPairs() error = %v", err)
	}
	if len(pairs) != 5 {
		t.Errorf("items = %d, want 5 (one per page up to the cap)", len(pairs))
	}
	if mock.RequestCount != 5 {
		t.Errorf("requests = %d, want 5", mock.RequestCount)
	}
}

func TestListAllServerError(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.SetHandler("/minedBuildPairs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mock)

	_, err := c.ListMinedBuildPairs(context.Background())
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", statusErr.StatusCode)
	}
}

func TestFilterListEmptyFilter(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	c := newTestClient(t, mock)

	if _, err := c.FilterMinedBuildPairs(context.Background(), ""); err != ErrEmptyFilter {
		t.Errorf("FilterMinedBuildPairs(\"\") error = %v, want ErrEmptyFilter", err)
	}
}

func TestFilterListEscapesExpression(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	var gotWhere string
	mock.SetHandler("/minedBuildPairs", func(w http.ResponseWriter, r *http.Request) {
		gotWhere = r.URL.Query().Get("where")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_items": []}`))
	})

	c := newTestClient(t, mock)

	filter := `{"repo": "apache/commons-lang"}`
	if _, err := c.FilterMinedBuildPairs(context.Background(), filter); err != nil {
		t.Fatalf("FilterMinedBuildPairs() error = %v", err)
	}
	if gotWhere != filter {
		t.Errorf("where = %q, want %q", gotWhere, filter)
	}
}

func TestCount(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.Seed("artifacts",
		testutil.Entity{"image_tag": "a"},
		testutil.Entity{"image_tag": "b"},
		testutil.Entity{"image_tag": "c"},
	)

	c := newTestClient(t, mock)

	count, err := c.CountArtifacts(context.Background())
	if err != nil {
		t.Fatalf("CountArtifacts() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestCountMissingTotal(t *testing.T) {
	mock := testutil.NewMockStore()
	defer mock.Close()

	mock.SetHandler("/artifacts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_items": []}`))
	})

	c := newTestClient(t, mock)

	count, err := c.CountArtifacts(context.Background())
	if err != nil {
		t.Fatalf("CountArtifacts() error = %v", err)
	}
	if count != -1 {
		t.Errorf("count = %d, want -1 for missing _meta.total", count)
	}
}
