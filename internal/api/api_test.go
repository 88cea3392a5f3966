package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroulette/backend/internal/auth"
	"github.com/astroulette/backend/internal/core"
	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/store"
)

type stubGenerator struct{ err error }

func (g stubGenerator) GenerateCharacter(context.Context) (*llm.CharacterSheet, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.CharacterSheet{
		ImagePrompt: "a violet alien", Name: "Vexa", PlanetName: "Kormoth", PlanetDescription: "copper seas",
		PersonalityTraits: "bold", SpeechStyle: "nautical", Quirks: "clicks", HumanRelationship: "curious",
	}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, string) (string, error) { return "https://img/vexa.png", nil }

type echoStreamer struct{}

func (echoStreamer) StreamReply(_ context.Context, req llm.ReplyRequest) (<-chan llm.Event, error) {
	ch := make(chan llm.Event, 3)
	ch <- llm.Delta{Text: "you said: "}
	ch <- llm.Delta{Text: req.Input}
	ch <- llm.Completed{ResponseID: "resp_" + req.Input, Text: "you said: " + req.Input}
	close(ch)
	return ch, nil
}

type memMailer struct {
	mu   sync.Mutex
	sent map[string]string
}

func (m *memMailer) Send(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[to] = token
	return nil
}

type fixture struct {
	srv    *httptest.Server
	store  *store.Store
	tokens *auth.TokenIssuer
	mailer *memMailer
}

func newFixture(t *testing.T, gen llm.CharacterGenerator) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	s, err := store.Open(ctx, ":memory:", log)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	tokens := auth.NewTokenIssuer("secret", time.Hour)
	mailer := &memMailer{sent: map[string]string{}}
	authSvc := auth.NewService(s, tokens, mailer, log)

	prov := core.NewProvisioner(s, gen, stubRenderer{}, 2, 0, log)
	chats := core.NewChatService(s, core.NewResolver(s, prov, log), echoStreamer{}, log)
	chars := core.NewCharacterService(s, prov, log)

	handler := NewAPIHandler(authSvc, chats, chars, []string{"*"}, false, log)
	srv := httptest.NewServer(NewRouter(handler, []string{"*"}, log))
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	return &fixture{srv: srv, store: s, tokens: tokens, mailer: mailer}
}

func (f *fixture) user(t *testing.T, email string, role store.Role) (*store.User, string) {
	t.Helper()
	u, err := f.store.Users().Create(context.Background(), &store.User{Username: strings.Split(email, "@")[0], Email: email, Role: role})
	require.NoError(t, err)
	token, err := f.tokens.Generate(u.ID)
	require.NoError(t, err)
	return u, token
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, stubGenerator{})
	resp, body := f.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMagicLinkFlow(t *testing.T) {
	f := newFixture(t, stubGenerator{})

	resp, _ := f.do(t, http.MethodPost, "/api/user/login", "", `{"email":"ana@example.com","username":"ana"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loginToken := f.mailer.sent["ana@example.com"]
	require.NotEmpty(t, loginToken)

	resp, body := f.do(t, http.MethodGet, "/api/user/verify?token="+loginToken, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ana@example.com", body["email"])

	var access *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == accessTokenCookie {
			access = c
		}
	}
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/user/me", nil)
	require.NoError(t, err)
	req.AddCookie(access)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/user/verify?token="+loginToken, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token.", body["detail"])
}

func TestAuthAndAdminGuards(t *testing.T) {
	f := newFixture(t, stubGenerator{})
	_, userToken := f.user(t, "u@example.com", store.RoleUser)
	_, adminToken := f.user(t, "admin@admin.com", store.RoleAdmin)

	resp, _ := f.do(t, http.MethodGet, "/api/character", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/user", userToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/user", adminToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/character/add", adminToken,
		`{"name":"Qyl","planet_name":"Marrow","image_prompt":"moss alien"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, store.ImagePending, body["image_url"])

	resp, body = f.do(t, http.MethodPatch, "/api/character/1", adminToken, `{"image_url":"https://img/qyl.png"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://img/qyl.png", body["image_url"])

	resp, _ = f.do(t, http.MethodGet, "/api/character/99", userToken, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/character/abc", userToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartChatAndHistory(t *testing.T) {
	f := newFixture(t, stubGenerator{})
	_, token := f.user(t, "u@example.com", store.RoleUser)
	_, otherToken := f.user(t, "o@example.com", store.RoleUser)

	resp, body := f.do(t, http.MethodGet, "/api/character/chat", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	threadID := int64(body["thread_id"].(float64))
	character := body["character"].(map[string]any)
	assert.Equal(t, "Vexa", character["name"])
	assert.Equal(t, "https://img/vexa.png", character["image_url"])

	path := "/api/chat/history/" + itoa(threadID)
	resp, _ = f.do(t, http.MethodGet, path, otherToken, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, path, token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/thread/"+itoa(threadID), token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, path, token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartChat_ProvisioningUnavailable(t *testing.T) {
	f := newFixture(t, stubGenerator{err: errors.New("text service down")})
	_, token := f.user(t, "u@example.com", store.RoleUser)

	resp, body := f.do(t, http.MethodGet, "/api/character/chat", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["detail"], "try again later")
}

func TestChatSocket(t *testing.T) {
	f := newFixture(t, stubGenerator{})
	_, token := f.user(t, "u@example.com", store.RoleUser)

	_, body := f.do(t, http.MethodGet, "/api/character/chat", token, "")
	threadID := int64(body["thread_id"].(float64))

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/chat/" + itoa(threadID)
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	var got []string
	for len(got) < 2 {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"you said: ", "hello"}, got)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		msgs, err := f.store.ThreadMessages(context.Background(), threadID)
		return err == nil && len(msgs) == 2
	}, 5*time.Second, 20*time.Millisecond)

	last, err := f.store.LastAssistantMessage(context.Background(), threadID)
	require.NoError(t, err)
	assert.Equal(t, "resp_hello", *last.ExternalResponseID)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrRecordNotFound, http.StatusNotFound},
		{store.ErrTableNotFound, http.StatusInternalServerError},
		{store.ErrDatabase, http.StatusInternalServerError},
		{core.ErrProvisioningFailed, http.StatusServiceUnavailable},
		{auth.ErrAuthExpired, http.StatusUnauthorized},
		{auth.ErrAuthInvalid, http.StatusUnauthorized},
		{core.ErrForbidden, http.StatusForbidden},
		{errBadRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := statusFor(c.err)
		assert.Equal(t, c.want, status, c.err.Error())
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
