package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/auth"
	"github.com/hisyeo/kennings/internal/cache"
	"github.com/hisyeo/kennings/internal/lexicon"
	"github.com/hisyeo/kennings/internal/limiter"
	"github.com/hisyeo/kennings/internal/middleware"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/hisyeo/kennings/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret     = "handler-secret"
	contributorKey = "c-key"
	editorKey      = "e-key"
)

var testKeys = auth.Keys{Contributor: contributorKey, Editor: editorKey, Admin: "a-key"}

const definitionsTSV = "concept\tdefinition\n" +
	"pl:battle.n\ta hostile meeting\n" +
	"pl:battleship.n\ta large warship\n" +
	"pl:sea.n\tthe expanse of salt water\n"

const englishTSV = "concept\tstyle\tword\ttranscription\tetymology\n" +
	"pl:battle.n\tnoun\tbattle\t\t\n" +
	"pl:battleship.n\tnoun\tbattleship\t\t\n" +
	"pl:sea.n\tnoun\tsea\t\t\n"

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	m.hits++
	return v, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	cache  *memCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	testutil.Seed(t, db)
	store := repository.NewStore(db)

	index, err := lexicon.Load(strings.NewReader(definitionsTSV), strings.NewReader(englishTSV), lexicon.DefaultOptions())
	require.NoError(t, err)

	mc := &memCache{data: make(map[string][]byte)}
	routes := &Routes{
		Kennings:  NewKenningHandler(store, index, mc, 20),
		Review:    NewReviewHandler(store),
		Votes:     NewVoteHandler(store),
		Export:    NewExportHandler(store),
		Auth:      NewAuthHandler(testSecret, testKeys),
		Limiter:   limiter.NewLimiter(nil, nil),
		JWTSecret: testSecret,
		Keys:      testKeys,
	}

	r := gin.New()
	routes.Register(r)
	return &testEnv{router: r, db: db, cache: mc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, key string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.KeyHeader, key)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type kenningJSON struct {
	KenningID *int64                   `json:"kenningId"`
	Words     []map[string]interface{} `json:"words"`
}

type conceptJSON struct {
	Concept  string        `json:"concept"`
	Kennings []kenningJSON `json:"kennings"`
}

type envelope struct {
	Concepts    []conceptJSON `json:"concepts"`
	Error       string        `json:"error"`
	Setup       string        `json:"setup"`
	SearchValue string        `json:"searchValue"`
	Text        string        `json:"text"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type addResponse struct {
	ID         int64  `json:"id"`
	Definition string `json:"definition"`
	Unresolved int    `json:"unresolved"`
	Version    int    `json:"version"`
}

func (e *testEnv) addKenning(t *testing.T, concept, hisyeo string) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/kennings", AddRequest{Concept: concept, CreatedBy: "ana", Hisyeo: hisyeo}, contributorKey)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp addResponse
	decode(t, w, &resp)
	return resp.ID
}

func (e *testEnv) approve(t *testing.T, id int64) {
	t.Helper()
	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/kennings/%d/approve", id), nil, editorKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRecent_EmptyDatabaseShowsSetupHint(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/kennings", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp envelope
	decode(t, w, &resp)
	assert.Equal(t, SetupMessage, resp.Setup)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Concepts)
	assert.Empty(t, resp.Concepts)
}

func TestAddApproveAndList(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/kennings",
		AddRequest{Concept: "pl:battle.n", CreatedBy: "ana", Hisyeo: "sêm ka zzz."}, contributorKey)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var added addResponse
	decode(t, w, &added)
	assert.Equal(t, 1, added.Unresolved)
	assert.Equal(t, "a hostile meeting", added.Definition, "definition comes from the lexicon")

	// submitted kennings are not public
	var resp envelope
	decode(t, e.do(t, http.MethodGet, "/api/kennings", nil, ""), &resp)
	assert.Empty(t, resp.Concepts)

	e.approve(t, added.ID)

	resp = envelope{}
	decode(t, e.do(t, http.MethodGet, "/api/kennings", nil, ""), &resp)
	assert.Empty(t, resp.Setup)
	require.Len(t, resp.Concepts, 1)
	assert.Equal(t, "pl:battle.n", resp.Concepts[0].Concept)
	require.Len(t, resp.Concepts[0].Kennings, 1)

	k := resp.Concepts[0].Kennings[0]
	require.NotNil(t, k.KenningID)
	assert.Equal(t, added.ID, *k.KenningID)
	require.Len(t, k.Words, 4)
	assert.Equal(t, "sêm", k.Words[0]["latin"])
	assert.Equal(t, "zzz", k.Words[2]["latin"])
	assert.Nil(t, k.Words[2]["wordId"])
	assert.Equal(t, "punct", k.Words[3]["kind"])
	for _, word := range k.Words {
		assert.NotContains(t, word, "votes")
	}
}

func TestAdd_Validation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
		key  string
		want int
	}{
		{"no key", AddRequest{Concept: "pl:sea.n", CreatedBy: "ana", Hisyeo: "ka"}, "", http.StatusUnauthorized},
		{"wrong key", AddRequest{Concept: "pl:sea.n", CreatedBy: "ana", Hisyeo: "ka"}, "nope", http.StatusUnauthorized},
		{"missing author", AddRequest{Concept: "pl:sea.n", Hisyeo: "ka"}, contributorKey, http.StatusBadRequest},
		{"missing text", AddRequest{Concept: "pl:sea.n", CreatedBy: "ana"}, contributorKey, http.StatusBadRequest},
		{"whitespace text", AddRequest{Concept: "pl:sea.n", CreatedBy: "ana", Hisyeo: "   "}, contributorKey, http.StatusBadRequest},
		{"unknown concept", AddRequest{Concept: "pl:nothing.n", CreatedBy: "ana", Hisyeo: "ka"}, contributorKey, http.StatusBadRequest},
		{"unknown concept with definition", AddRequest{Concept: "pl:nothing.n", CreatedBy: "ana", Hisyeo: "ka", Definition: "made up"}, contributorKey, http.StatusCreated},
		{"editor may add", AddRequest{Concept: "pl:sea.n", CreatedBy: "ana", Hisyeo: "ka"}, editorKey, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/kennings", tt.body, tt.key)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), middleware.InvalidCredentialsMessage)
			}
		})
	}
}

func TestSearch_GroupsKenningsAndAddsPlaceholders(t *testing.T) {
	e := newTestEnv(t)

	id := e.addKenning(t, "pl:battle.n", "sêm ka")
	e.approve(t, id)

	w := e.do(t, http.MethodGet, "/api/search?value=battle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp envelope
	decode(t, w, &resp)
	assert.Equal(t, "battle", resp.SearchValue)
	require.Len(t, resp.Concepts, 2)

	assert.Equal(t, "pl:battle.n", resp.Concepts[0].Concept)
	require.NotNil(t, resp.Concepts[0].Kennings[0].KenningID)
	assert.Equal(t, id, *resp.Concepts[0].Kennings[0].KenningID)

	placeholder := resp.Concepts[1]
	assert.Equal(t, "pl:battleship.n", placeholder.Concept)
	require.Len(t, placeholder.Kennings, 1)
	assert.Nil(t, placeholder.Kennings[0].KenningID)
	require.Len(t, placeholder.Kennings[0].Words, 1)
	assert.Equal(t, map[string]interface{}{
		"concept":    "pl:battleship.n",
		"definition": "a large warship",
	}, placeholder.Kennings[0].Words[0])
}

func TestSearch_UsesCache(t *testing.T) {
	e := newTestEnv(t)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/search?value=Sea", nil, "").Code)
	assert.Contains(t, e.cache.data, cache.SearchKey("sea"))
	assert.Equal(t, 0, e.cache.hits)

	w := e.do(t, http.MethodGet, "/api/search?value=sea", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, e.cache.hits)

	var resp envelope
	decode(t, w, &resp)
	require.Len(t, resp.Concepts, 1)
	assert.Equal(t, "pl:sea.n", resp.Concepts[0].Concept)
}

func TestSearch_CacheWriteSurvivesCancelledRequest(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/search?value=sea", nil).WithContext(ctx)
	e.router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, e.cache.data, cache.SearchKey("sea"))
}

func TestSearch_EmptyAndUnmatched(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/search?value=%20", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/search?value=xqzvwk", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope
	decode(t, w, &resp)
	assert.Empty(t, resp.Concepts)
	assert.Equal(t, "No English word was found that matches that search value.", resp.Error)
}

func TestTokenize(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/tokenize?text="+url.QueryEscape("ka zzz"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tokens []struct {
			Raw    string `json:"raw"`
			WordID *int64 `json:"wordId"`
		} `json:"tokens"`
		Spans []struct {
			Class string `json:"class"`
		} `json:"spans"`
		Unresolved int `json:"unresolved"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Tokens, 2)
	assert.NotNil(t, resp.Tokens[0].WordID)
	assert.Nil(t, resp.Tokens[1].WordID)
	assert.Equal(t, "word-ka", resp.Spans[0].Class)
	assert.Equal(t, "word-not-found", resp.Spans[1].Class)
	assert.Equal(t, 1, resp.Unresolved)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/tokenize", nil, "").Code)
}

func TestVotes(t *testing.T) {
	e := newTestEnv(t)

	published := e.addKenning(t, "pl:battle.n", "sêm ka")
	e.approve(t, published)
	draft := e.addKenning(t, "pl:sea.n", "ka")

	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/kennings/%d/votes", published), VoteRequest{Type: "up", Weight: 3}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var cast struct {
		Votes []struct {
			Type  string `json:"type"`
			Total int64  `json:"total"`
		} `json:"votes"`
	}
	decode(t, w, &cast)
	require.Len(t, cast.Votes, 1)
	assert.Equal(t, "up", cast.Votes[0].Type)
	assert.Equal(t, int64(3), cast.Votes[0].Total)

	var resp envelope
	decode(t, e.do(t, http.MethodGet, "/api/kennings", nil, ""), &resp)
	require.Len(t, resp.Concepts, 1)
	for _, word := range resp.Concepts[0].Kennings[0].Words {
		votes, ok := word["votes"].([]interface{})
		require.True(t, ok)
		assert.Len(t, votes, 1)
	}

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"unpublished kenning", fmt.Sprintf("/api/kennings/%d/votes", draft), VoteRequest{Type: "up"}, http.StatusNotFound},
		{"missing kenning", "/api/kennings/999/votes", VoteRequest{Type: "up"}, http.StatusNotFound},
		{"bad id", "/api/kennings/abc/votes", VoteRequest{Type: "up"}, http.StatusBadRequest},
		{"unknown type", fmt.Sprintf("/api/kennings/%d/votes", published), VoteRequest{Type: "sideways"}, http.StatusBadRequest},
		{"missing type", fmt.Sprintf("/api/kennings/%d/votes", published), map[string]int{"weight": 1}, http.StatusBadRequest},
		{"weight too large", fmt.Sprintf("/api/kennings/%d/votes", published), VoteRequest{Type: "up", Weight: 9}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.do(t, http.MethodPost, tt.path, tt.body, "").Code)
		})
	}
}

func TestVoteTypes(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/vote-types", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		VoteTypes []struct {
			Name string `json:"name"`
		} `json:"voteTypes"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.VoteTypes, 4)
	assert.Equal(t, "up", resp.VoteTypes[0].Name)
}

func TestEditAndGet(t *testing.T) {
	e := newTestEnv(t)

	id := e.addKenning(t, "pl:battle.n", "sêm ka")
	path := fmt.Sprintf("/api/kennings/%d", id)

	w := e.do(t, http.MethodPost, path+"/edit", EditRequest{Hisyeo: "hîsyêô ka zzz", Definition: "a fight"}, contributorKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited addResponse
	decode(t, w, &edited)
	assert.Equal(t, 2, edited.Version)
	assert.Equal(t, 1, edited.Unresolved)

	w = e.do(t, http.MethodGet, path, nil, contributorKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope
	decode(t, w, &resp)
	assert.Equal(t, "hîsyêô ka zzz", resp.Text)
	require.Len(t, resp.Concepts, 1)
	assert.Equal(t, "a fight", resp.Concepts[0].Kennings[0].Words[0]["definition"])

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/kennings/999", nil, contributorKey).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/kennings/999/edit", EditRequest{Hisyeo: "ka"}, contributorKey).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, path+"/edit", EditRequest{}, contributorKey).Code)
}

func TestReviewTransitions(t *testing.T) {
	e := newTestEnv(t)

	id := e.addKenning(t, "pl:battle.n", "sêm ka")
	e.addKenning(t, "pl:sea.n", "ka")
	path := fmt.Sprintf("/api/kennings/%d", id)

	w := e.do(t, http.MethodGet, "/api/review", nil, editorKey)
	require.Equal(t, http.StatusOK, w.Code)
	var review struct {
		Actions  []map[string]interface{} `json:"actions"`
		Concepts []conceptJSON            `json:"concepts"`
	}
	decode(t, w, &review)
	assert.Len(t, review.Actions, 2)
	assert.Len(t, review.Concepts, 2)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/api/review", nil, contributorKey).Code)

	steps := []struct {
		action string
		want   int
	}{
		{"unpublish", http.StatusConflict},
		{"approve", http.StatusOK},
		{"approve", http.StatusConflict},
		{"unpublish", http.StatusOK},
		{"unpublish", http.StatusConflict},
		{"approve", http.StatusOK},
		{"delete", http.StatusOK},
		{"restore", http.StatusOK},
	}
	for _, s := range steps {
		w := e.do(t, http.MethodPost, path+"/"+s.action, nil, editorKey)
		assert.Equal(t, s.want, w.Code, "%s: %s", s.action, w.Body.String())
	}

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/kennings/999/approve", nil, editorKey).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/kennings/999/delete", nil, editorKey).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, path+"/approve", nil, contributorKey).Code)
}

func TestDeletedKenningsAreHidden(t *testing.T) {
	e := newTestEnv(t)

	id := e.addKenning(t, "pl:battle.n", "sêm ka")
	e.approve(t, id)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, fmt.Sprintf("/api/kennings/%d/delete", id), nil, editorKey).Code)

	var resp envelope
	decode(t, e.do(t, http.MethodGet, "/api/kennings", nil, ""), &resp)
	assert.Empty(t, resp.Concepts)

	resp = envelope{}
	decode(t, e.do(t, http.MethodGet, "/api/search?value=battle", nil, ""), &resp)
	require.Len(t, resp.Concepts, 2)
	assert.Nil(t, resp.Concepts[0].Kennings[0].KenningID, "deleted kenning leaves a placeholder")
}

func TestExport(t *testing.T) {
	e := newTestEnv(t)

	id := e.addKenning(t, "pl:battle.n", "sêm ka")
	e.approve(t, id)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, fmt.Sprintf("/api/kennings/%d/votes", id), VoteRequest{Type: "up"}, "").Code)

	w := e.do(t, http.MethodGet, "/api/export?format=csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "Concept,Kenning,Definition,Latin,Abugida,Syllabary,Votes\n"))
	assert.Contains(t, body, "pl:battle.n")
	assert.Contains(t, body, "sêm ka")
	assert.Contains(t, body, "up 1")

	w = e.do(t, http.MethodGet, "/api/export?format=md", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "## pl:battle.n")
	assert.Contains(t, w.Body.String(), "- **sêm ka**")

	w = e.do(t, http.MethodGet, "/api/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope
	decode(t, w, &resp)
	assert.Len(t, resp.Concepts, 1)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/export?format=xml", nil, "").Code)
}

func TestAuthToken(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/token", TokenRequest{Key: editorKey, Name: "ana"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var token TokenResponse
	decode(t, w, &token)
	assert.Equal(t, auth.RoleEditor, token.Role)
	assert.Positive(t, token.ExpiresIn)

	req := httptest.NewRequest(http.MethodGet, "/api/review", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = e.do(t, http.MethodPost, "/api/auth/token", TokenRequest{Key: "guess"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), middleware.InvalidCredentialsMessage)
}

func TestStorageFailureShowsGenericError(t *testing.T) {
	e := newTestEnv(t)

	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	for _, path := range []string{"/api/kennings", "/api/search?value=battle", "/api/export"} {
		w := e.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)

		var resp envelope
		decode(t, w, &resp)
		assert.Equal(t, ErrorMessage, resp.Error, path)
		assert.Empty(t, resp.Setup, "errors never look like an empty database")
	}
}
