// Package fakeapi is an in-memory journal API for tests and local runs.
//
// It mirrors the reference server's contract: entries are created with
// 201, listed in creation order, replaced field by field with PUT, and
// deleted with 204. Unknown ids get 404 and invalid bodies get 422 with
// a {"detail": ...} body.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

// MaxFieldLength is the longest accepted field, in characters.
const MaxFieldLength = 256

// Entry is a stored journal entry.
type Entry struct {
	ID        string    `json:"id"`
	Work      string    `json:"work"`
	Struggle  string    `json:"struggle"`
	Intention string    `json:"intention"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Server holds entries in memory.
//
// Thread-safety: Server is safe for concurrent use.
type Server struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	now     func() time.Time
	logger  *slog.Logger
	router  chi.Router
}

// New creates an empty server. A nil logger discards request logs.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		entries: make(map[string]*Entry),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Route("/entries", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Get("/{id}", s.get)
		r.Put("/{id}", s.update)
		r.Delete("/{id}", s.delete)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed stores entries as if they had been created, keeping their ids.
// Entries without an id get a fresh one.
func (s *Server) Seed(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
			e.UpdatedAt = e.CreatedAt
		}
		if _, exists := s.entries[e.ID]; !exists {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = &e
	}
}

// Entries returns a copy of every stored entry in creation order.
func (s *Server) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Entries())
}

type createRequest struct {
	Work      *string `json:"work"`
	Struggle  *string `json:"struggle"`
	Intention *string `json:"intention"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	fields := []struct {
		name  string
		value *string
	}{
		{"work", req.Work},
		{"struggle", req.Struggle},
		{"intention", req.Intention},
	}
	for _, f := range fields {
		if f.value == nil {
			writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("field %q is required", f.name))
			return
		}
		if utf8.RuneCountInString(*f.value) > MaxFieldLength {
			writeDetail(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("field %q exceeds %d characters", f.name, MaxFieldLength))
			return
		}
	}

	now := s.now()
	e := &Entry{
		ID:        uuid.New().String(),
		Work:      *req.Work,
		Struggle:  *req.Struggle,
		Intention: *req.Intention,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	out := *e
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	e, ok := s.entries[id]
	var out Entry
	if ok {
		out = *e
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Entry not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// updateRequest rejects unknown fields; present fields replace stored ones.
type updateRequest struct {
	Work      *string `json:"work"`
	Struggle  *string `json:"struggle"`
	Intention *string `json:"intention"`
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	var out Entry
	if ok {
		if req.Work != nil {
			e.Work = *req.Work
		}
		if req.Struggle != nil {
			e.Struggle = *req.Struggle
		}
		if req.Intention != nil {
			e.Intention = *req.Intention
		}
		e.UpdatedAt = s.now()
		out = *e
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Entry not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
