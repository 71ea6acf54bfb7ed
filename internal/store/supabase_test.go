package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restCall struct {
	Method string
	Path   string
	Query  url.Values
	Prefer string
	APIKey string
	Body   map[string]any
}

type restReply struct {
	status int
	body   string
}

// postgrestStub answers PostgREST requests from a scripted queue and records them.
type postgrestStub struct {
	mu      sync.Mutex
	calls   []restCall
	replies []restReply
}

func newSupabaseStub(t *testing.T, replies ...restReply) (*SupabaseStore, *postgrestStub) {
	t.Helper()
	stub := &postgrestStub{replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(srv.Close)

	s, err := NewSupabaseStore(srv.URL, "service-key")
	require.NoError(t, err)
	return s, stub
}

func (p *postgrestStub) serve(w http.ResponseWriter, r *http.Request) {
	call := restCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Prefer: r.Header.Get("Prefer"),
		APIKey: r.Header.Get("apikey"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &call.Body)
	}

	p.mu.Lock()
	p.calls = append(p.calls, call)
	reply := restReply{status: http.StatusInternalServerError, body: `{"code":"XX000","message":"unexpected request"}`}
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = io.WriteString(w, reply.body)
}

func (p *postgrestStub) recorded() []restCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]restCall(nil), p.calls...)
}

const (
	diuRow  = `{"id":1,"word":"DIU","pronunciation":"D I U","is_active":true,"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z"}`
	diaaRow = `{"id":9,"word":"DIAA","pronunciation":"diiaa","is_active":true,"created_at":"2025-01-03T03:04:05Z","updated_at":"2025-01-03T03:04:05Z"}`
	feesRow = `{"id":4,"title":"Fees","content":"Tuition","category":"Admissions","is_active":true,"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-04T03:04:05Z"}`
)

var noContent = restReply{status: http.StatusNoContent}

func TestSupabaseListPronunciations(t *testing.T) {
	s, stub := newSupabaseStub(t, restReply{status: http.StatusOK, body: "[" + diuRow + "]"})

	got, err := s.ListPronunciations(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DIU", got[0].Word)
	assert.True(t, got[0].IsActive)
	assert.Equal(t, 2025, got[0].CreatedAt.Year())

	calls := stub.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/rest/v1/pronunciations", calls[0].Path)
	assert.Equal(t, "*", calls[0].Query.Get("select"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
	assert.Equal(t, "created_at.asc.nullslast", calls[0].Query.Get("order"))
	assert.Equal(t, "service-key", calls[0].APIKey)
}

func TestSupabaseSavePronunciationUpdatesActiveRow(t *testing.T) {
	s, stub := newSupabaseStub(t, restReply{status: http.StatusOK, body: "[" + diaaRow + "]"})

	got, err := s.SavePronunciation(context.Background(), "DIAA", "diiaa")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)

	calls := stub.recorded()
	require.Len(t, calls, 1, "an updated row needs no insert")
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "return=representation", calls[0].Prefer)
	assert.Equal(t, "eq.DIAA", calls[0].Query.Get("word"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
	assert.Equal(t, "diiaa", calls[0].Body["pronunciation"])
	assert.NotEmpty(t, calls[0].Body["updated_at"])
}

func TestSupabaseSavePronunciationInsertsWhenNoActiveRow(t *testing.T) {
	s, stub := newSupabaseStub(t,
		restReply{status: http.StatusOK, body: "[]"},
		restReply{status: http.StatusCreated, body: "[" + diaaRow + "]"},
	)

	got, err := s.SavePronunciation(context.Background(), "DIAA", "diiaa")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, "diiaa", got.Pronunciation)

	calls := stub.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, http.MethodPost, calls[1].Method)
	assert.Equal(t, "/rest/v1/pronunciations", calls[1].Path)
	assert.Equal(t, "return=representation", calls[1].Prefer)
	assert.Equal(t, map[string]any{"word": "DIAA", "pronunciation": "diiaa", "is_active": true}, calls[1].Body)
}

func TestSupabaseSavePronunciationSurfacesRESTError(t *testing.T) {
	s, _ := newSupabaseStub(t, restReply{status: http.StatusUnauthorized, body: `{"code":"PGRST301","message":"JWT expired"}`})

	_, err := s.SavePronunciation(context.Background(), "DIAA", "diiaa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update pronunciation")
	assert.Contains(t, err.Error(), "JWT expired")
}

func TestSupabaseDeactivatePronunciationIsSoftDelete(t *testing.T) {
	s, stub := newSupabaseStub(t, noContent)

	require.NoError(t, s.DeactivatePronunciation(context.Background(), "DIU"))

	calls := stub.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "return=minimal", calls[0].Prefer)
	assert.Equal(t, "eq.DIU", calls[0].Query.Get("word"))
	assert.False(t, calls[0].Query.Has("is_active"))
	assert.Equal(t, false, calls[0].Body["is_active"])
}

func TestSupabaseListKnowledgeNewestFirst(t *testing.T) {
	s, stub := newSupabaseStub(t, restReply{status: http.StatusOK, body: "[" + feesRow + "]"})

	got, err := s.ListKnowledge(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fees", got[0].Title)

	calls := stub.recorded()
	assert.Equal(t, "/rest/v1/knowledge_base", calls[0].Path)
	assert.Equal(t, "created_at.desc.nullslast", calls[0].Query.Get("order"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
}

func TestSupabaseAddKnowledge(t *testing.T) {
	s, stub := newSupabaseStub(t, restReply{status: http.StatusCreated, body: "[" + feesRow + "]"})

	got, err := s.AddKnowledge(context.Background(), KnowledgeInput{Title: "Fees", Content: "Tuition", Category: "Admissions"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.ID)

	calls := stub.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "return=representation", calls[0].Prefer)
	assert.Equal(t, "Admissions", calls[0].Body["category"])
	assert.Equal(t, true, calls[0].Body["is_active"])
}

func TestSupabaseUpdateKnowledge(t *testing.T) {
	s, stub := newSupabaseStub(t,
		restReply{status: http.StatusOK, body: "[" + feesRow + "]"},
		restReply{status: http.StatusOK, body: "[]"},
	)
	in := KnowledgeInput{Title: "Fees", Content: "Tuition", Category: "Admissions"}

	got, err := s.UpdateKnowledge(context.Background(), 4, in)
	require.NoError(t, err)
	assert.Equal(t, "Tuition", got.Content)

	_, err = s.UpdateKnowledge(context.Background(), 5, in)
	require.ErrorIs(t, err, ErrNotFound)

	calls := stub.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "eq.4", calls[0].Query.Get("id"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
	assert.Equal(t, "return=representation", calls[0].Prefer)
	assert.Equal(t, "eq.5", calls[1].Query.Get("id"))
}

func TestSupabaseDeactivateKnowledge(t *testing.T) {
	s, stub := newSupabaseStub(t,
		restReply{status: http.StatusOK, body: "[" + feesRow + "]"},
		restReply{status: http.StatusOK, body: "[]"},
	)

	require.NoError(t, s.DeactivateKnowledge(context.Background(), 4))
	require.ErrorIs(t, s.DeactivateKnowledge(context.Background(), 4), ErrNotFound)

	calls := stub.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, false, calls[0].Body["is_active"])
	assert.Equal(t, "eq.4", calls[0].Query.Get("id"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
}

func TestSupabaseActiveAPIKey(t *testing.T) {
	s, stub := newSupabaseStub(t,
		restReply{status: http.StatusOK, body: `[{"id":2,"key_name":"mistral","key_value":"sk-live","is_active":true,"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z"}]`},
		restReply{status: http.StatusOK, body: "[]"},
	)

	got, err := s.ActiveAPIKey(context.Background(), "mistral")
	require.NoError(t, err)
	assert.Equal(t, "sk-live", got)

	_, err = s.ActiveAPIKey(context.Background(), "elevenlabs")
	require.ErrorIs(t, err, ErrNotFound)

	calls := stub.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "/rest/v1/api_keys", calls[0].Path)
	assert.Equal(t, "eq.mistral", calls[0].Query.Get("key_name"))
	assert.Equal(t, "created_at.desc.nullslast", calls[0].Query.Get("order"))
	assert.Equal(t, "1", calls[0].Query.Get("limit"))
	assert.Equal(t, "eq.elevenlabs", calls[1].Query.Get("key_name"))
}

func TestSupabaseSetAPIKeyDeactivatesThenInserts(t *testing.T) {
	s, stub := newSupabaseStub(t, noContent, restReply{status: http.StatusCreated})

	require.NoError(t, s.SetAPIKey(context.Background(), "mistral", "sk-new"))

	calls := stub.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "return=minimal", calls[0].Prefer)
	assert.Equal(t, "eq.mistral", calls[0].Query.Get("key_name"))
	assert.Equal(t, "eq.true", calls[0].Query.Get("is_active"))
	assert.Equal(t, false, calls[0].Body["is_active"])

	assert.Equal(t, http.MethodPost, calls[1].Method)
	assert.Equal(t, "return=minimal", calls[1].Prefer)
	assert.Equal(t, map[string]any{"key_name": "mistral", "key_value": "sk-new", "is_active": true}, calls[1].Body)
}

func TestSupabaseSetAPIKeySurfacesInsertFailure(t *testing.T) {
	s, stub := newSupabaseStub(t, noContent, restReply{status: http.StatusConflict, body: `{"code":"23505","message":"duplicate key value"}`})

	err := s.SetAPIKey(context.Background(), "mistral", "sk-new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert api key")
	assert.Contains(t, err.Error(), "23505")
	assert.Len(t, stub.recorded(), 2)
}

func TestSupabaseHonoursCanceledContext(t *testing.T) {
	s, stub := newSupabaseStub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListKnowledge(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, stub.recorded())
}
