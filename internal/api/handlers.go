package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/auth"
	"github.com/astroulette/backend/internal/core"
	"github.com/astroulette/backend/internal/store"
)

type APIHandler struct {
	auth         *auth.Service
	chats        *core.ChatService
	characters   *core.CharacterService
	upgrader     websocket.Upgrader
	secureCookie bool
	log          logrus.FieldLogger
}

func NewAPIHandler(as *auth.Service, cs *core.ChatService, chars *core.CharacterService, allowedOrigins []string, secureCookie bool, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{
		auth:         as,
		chats:        cs,
		characters:   chars,
		upgrader:     newUpgrader(allowedOrigins),
		secureCookie: secureCookie,
		log:          log,
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

// Users

type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Email == "" {
		h.writeError(w, fmt.Errorf("%w: email is required", errBadRequest))
		return
	}

	if err := h.auth.RequestLogin(r.Context(), req.Email, req.Username); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login link sent. Check your email."})
}

func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	access, user, err := h.auth.VerifyLogin(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   int(h.auth.Tokens().TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteNoneMode,
	})
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.UserFrom(r.Context()))
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteNoneMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

func (h *APIHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var patch store.UserPatch
	if err := decodeBody(r, &patch); err != nil {
		h.writeError(w, err)
		return
	}
	if patch.Role != nil && *patch.Role != store.RoleUser && *patch.Role != store.RoleAdmin {
		h.writeError(w, fmt.Errorf("%w: unknown role %q", errBadRequest, *patch.Role))
		return
	}
	if patch.Status != nil && *patch.Status != store.StatusActive && *patch.Status != store.StatusDeleted {
		h.writeError(w, fmt.Errorf("%w: unknown status %q", errBadRequest, *patch.Status))
		return
	}

	user, err := h.auth.UpdateUser(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.auth.DeleteUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Characters

func (h *APIHandler) ListCharactersHandler(w http.ResponseWriter, r *http.Request) {
	chars, err := h.characters.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chars)
}

func (h *APIHandler) GetCharacterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.characters.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *APIHandler) GenerateCharacterHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	c, err := h.characters.Generate(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *APIHandler) AddCharacterHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var c store.Character
	if err := decodeBody(r, &c); err != nil {
		h.writeError(w, err)
		return
	}
	if c.Name == "" || c.PlanetName == "" {
		h.writeError(w, fmt.Errorf("%w: name and planet_name are required", errBadRequest))
		return
	}

	created, err := h.characters.Add(r.Context(), user.ID, c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) UpdateCharacterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var patch store.CharacterPatch
	if err := decodeBody(r, &patch); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.characters.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *APIHandler) DeleteCharacterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.characters.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Chat

type StartChatResponse struct {
	ThreadID  int64            `json:"thread_id"`
	Character *store.Character `json:"character"`
}

// StartChatHandler pairs the caller with a character they have not met.
func (h *APIHandler) StartChatHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	thread, c, err := h.chats.StartChat(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartChatResponse{ThreadID: thread.ID, Character: c})
}

func (h *APIHandler) ListThreadsHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	threads, err := h.chats.ListThreads(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

type HistoryEntry struct {
	Role      store.MessageRole `json:"role"`
	Content   string            `json:"content"`
	CreatedAt int64             `json:"created_at"`
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	threadID, err := pathID(r, "threadID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	msgs, err := h.chats.History(r.Context(), user.ID, threadID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]HistoryEntry, len(msgs))
	for i, m := range msgs {
		out[i] = HistoryEntry{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt.Unix()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) DeleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	threadID, err := pathID(r, "threadID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.chats.DeleteThread(r.Context(), user.ID, threadID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChatSocketHandler upgrades to a websocket and runs a chat session on the
// thread until the client leaves.
func (h *APIHandler) ChatSocketHandler(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	threadID, err := pathID(r, "threadID")
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	transport := NewWSTransport(r.Context(), conn)

	sess, err := h.chats.OpenSession(r.Context(), user, threadID, transport)
	if err != nil {
		_, msg := statusFor(err)
		_ = transport.CloseWith(websocket.ClosePolicyViolation, msg)
		return
	}
	if err := sess.Run(r.Context()); err != nil {
		h.log.WithError(err).WithField("thread_id", threadID).Error("chat session ended with error")
	}
}
