// Package testutil provides testing utilities for the CI database client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Entity is a document stored in the mock database.
type Entity = map[string]any

// MockStore is an in-memory mock of the etag-versioned REST database for
// testing. It serves collections under /{resource}, paginates list responses,
// and enforces If-Match on writes the way the real server does.
type MockStore struct {
	server   *httptest.Server
	mu       sync.RWMutex
	data     map[string][]Entity
	nextID   int
	nextEtag int
	handlers map[string]http.HandlerFunc

	// PageSize controls how many items a list page carries.
	PageSize int

	// RejectWrites makes POST and PUT respond with 422 for the named
	// resources, emulating server-side validation failures.
	RejectWrites map[string]bool

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockStore creates a new mock database server.
func NewMockStore() *MockStore {
	mock := &MockStore{
		data:         make(map[string][]Entity),
		nextID:       1,
		nextEtag:     1,
		handlers:     make(map[string]http.HandlerFunc),
		PageSize:     25,
		RejectWrites: make(map[string]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))

	return mock
}

// URL returns the mock server URL.
func (m *MockStore) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStore) Close() {
	m.server.Close()
}

// SetHandler installs a custom handler for a specific path, overriding the
// built-in store behavior.
func (m *MockStore) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Seed inserts entities into a resource collection, assigning _id and _etag.
func (m *MockStore) Seed(resource string, entities ...Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.insert(resource, e)
	}
}

// Get returns a copy of the entity with the given _id, or nil.
func (m *MockStore) Get(resource, id string) Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.data[resource] {
		if fmt.Sprintf("%v", e["_id"]) == id {
			copied := make(Entity, len(e))
			for k, v := range e {
				copied[k] = v
			}
			return copied
		}
	}
	return nil
}

// Count returns the number of entities in a resource collection.
func (m *MockStore) Count(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[resource])
}

// insert assigns _id (when absent) and a fresh _etag. Caller holds the lock.
func (m *MockStore) insert(resource string, e Entity) {
	if _, ok := e["_id"]; !ok {
		e["_id"] = fmt.Sprintf("id-%d", m.nextID)
		m.nextID++
	}
	e["_etag"] = m.newEtag()
	m.data[resource] = append(m.data[resource], e)
}

func (m *MockStore) newEtag() string {
	etag := fmt.Sprintf("etag-%d", m.nextEtag)
	m.nextEtag++
	return etag
}

func (m *MockStore) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	handler, overridden := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if overridden {
		handler(w, r)
		return
	}

	// Everything after the resource name is the item ID; repository slugs
	// contain a slash.
	parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)
	switch len(parts) {
	case 1:
		m.handleCollection(w, r, parts[0])
	case 2:
		m.handleItem(w, r, parts[0], parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (m *MockStore) handleCollection(w http.ResponseWriter, r *http.Request, resource string) {
	switch r.Method {
	case http.MethodGet:
		m.listPage(w, r, resource)
	case http.MethodPost:
		m.create(w, r, resource)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// listPage serves one page of a collection:
//
//	{"_items": [...], "_links": {"next": {"href": ...}}, "_meta": {"total": N}}
//
// The next link is omitted on the last page.
func (m *MockStore) listPage(w http.ResponseWriter, r *http.Request, resource string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.data[resource]

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}

	start := (page - 1) * m.PageSize
	end := start + m.PageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	items := all[start:end]
	if items == nil {
		items = []Entity{}
	}

	body := Entity{
		"_items": items,
		"_meta":  Entity{"total": len(all)},
	}

	links := Entity{}
	if end < len(all) {
		query := r.URL.Query()
		query.Set("page", strconv.Itoa(page+1))
		links["next"] = Entity{"href": r.URL.Path + "?" + query.Encode()}
	}
	body["_links"] = links

	writeJSON(w, http.StatusOK, body)
}

// create handles POST of a single entity or a list of entities.
func (m *MockStore) create(w http.ResponseWriter, r *http.Request, resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RejectWrites[resource] {
		writeJSON(w, http.StatusUnprocessableEntity, Entity{
			"_status": "ERR",
			"_issues": Entity{"validation": "rejected"},
		})
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var batch []Entity
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single Entity
		if err := json.Unmarshal(raw, &single); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		batch = []Entity{single}
	}

	for _, e := range batch {
		m.insert(resource, e)
	}

	writeJSON(w, http.StatusCreated, Entity{"_status": "OK"})
}

func (m *MockStore) handleItem(w http.ResponseWriter, r *http.Request, resource, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, e := range m.data[resource] {
		if fmt.Sprintf("%v", e["_id"]) == id {
			idx = i
			break
		}
	}

	if idx == -1 {
		// PUT to a missing item creates it at that URL.
		if r.Method == http.MethodPut {
			if m.RejectWrites[resource] {
				writeJSON(w, http.StatusUnprocessableEntity, Entity{
					"_status": "ERR",
					"_issues": Entity{"validation": "rejected"},
				})
				return
			}
			var created Entity
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			created["_id"] = id
			created["_etag"] = m.newEtag()
			m.data[resource] = append(m.data[resource], created)
			writeJSON(w, http.StatusCreated, Entity{"_status": "OK"})
			return
		}
		writeJSON(w, http.StatusNotFound, Entity{"_status": "ERR"})
		return
	}

	entity := m.data[resource][idx]

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, entity)

	case http.MethodPatch:
		if !m.checkEtag(w, r, entity) {
			return
		}
		var updates Entity
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for k, v := range updates {
			entity[k] = v
		}
		entity["_etag"] = m.newEtag()
		writeJSON(w, http.StatusOK, Entity{"_status": "OK"})

	case http.MethodPut:
		if m.RejectWrites[resource] {
			writeJSON(w, http.StatusUnprocessableEntity, Entity{
				"_status": "ERR",
				"_issues": Entity{"validation": "rejected"},
			})
			return
		}
		if !m.checkEtag(w, r, entity) {
			return
		}
		var replacement Entity
		if err := json.NewDecoder(r.Body).Decode(&replacement); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		replacement["_id"] = entity["_id"]
		replacement["_etag"] = m.newEtag()
		m.data[resource][idx] = replacement
		writeJSON(w, http.StatusOK, Entity{"_status": "OK"})

	case http.MethodDelete:
		if !m.checkEtag(w, r, entity) {
			return
		}
		m.data[resource] = append(m.data[resource][:idx], m.data[resource][idx+1:]...)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// checkEtag enforces the If-Match precondition. Caller holds the lock.
func (m *MockStore) checkEtag(w http.ResponseWriter, r *http.Request, entity Entity) bool {
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		writeJSON(w, http.StatusPreconditionRequired, Entity{"_status": "ERR"})
		return false
	}
	if ifMatch != fmt.Sprintf("%v", entity["_etag"]) {
		writeJSON(w, http.StatusPreconditionFailed, Entity{"_status": "ERR"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
