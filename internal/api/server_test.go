package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"classboard/internal/auth"
	"classboard/internal/data"
	"classboard/internal/hub"
	"classboard/internal/middleware"
)

type fakeUsers struct {
	byEmail map[string]*data.User
	byID    map[string]*data.User
	created []*data.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: map[string]*data.User{},
		byID:    map[string]*data.User{},
	}
}

func (f *fakeUsers) add(u *data.User) {
	f.byEmail[u.Email] = u
	f.byID[u.ID.Hex()] = u
}

func (f *fakeUsers) Create(ctx context.Context, name, email, hashedPassword, role, studentID string) (*data.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return nil, data.ErrUserExists
	}
	u := &data.User{
		ID:        bson.NewObjectID(),
		Name:      name,
		Email:     email,
		Password:  hashedPassword,
		Role:      role,
		StudentID: studentID,
	}
	f.add(u)
	f.created = append(f.created, u)
	return u, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*data.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := f.byID[id]
	return ok, nil
}

func (f *fakeUsers) List(ctx context.Context) ([]*data.User, error) {
	users := make([]*data.User, 0, len(f.byID))
	for _, u := range f.byID {
		users = append(users, u)
	}
	return users, nil
}

type fakeMsgs struct {
	saved     []*data.Message
	history   []*data.Message
	summaries []*data.PartnerSummary
}

func (f *fakeMsgs) Save(ctx context.Context, msg *data.Message) (*data.Message, error) {
	if msg.ID == "" {
		msg.ID = "generated-id"
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	msg.Seq = int64(len(f.saved) + 1)
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMsgs) Conversation(ctx context.Context, user1, user2 string, limit int64) ([]*data.Message, error) {
	return f.history, nil
}

func (f *fakeMsgs) Contacts(ctx context.Context, userID string, limit int64) ([]*data.PartnerSummary, error) {
	return f.summaries, nil
}

type fakeNotifs struct {
	saved   []*data.Notification
	list    []*data.Notification
	read    []string
	deleted []string
	unread  int64
}

func (f *fakeNotifs) Save(ctx context.Context, n *data.Notification) (*data.Notification, error) {
	if n.ID == "" {
		n.ID = "generated-id"
	}
	f.saved = append(f.saved, n)
	return n, nil
}

func (f *fakeNotifs) ForRecipient(ctx context.Context, recipientID string) ([]*data.Notification, error) {
	return f.list, nil
}

func (f *fakeNotifs) MarkRead(ctx context.Context, id, recipientID string) error {
	for _, n := range f.list {
		if n.ID == id && n.RecipientID == recipientID {
			f.read = append(f.read, id)
			return nil
		}
	}
	return data.ErrNotificationNotFound
}

func (f *fakeNotifs) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return f.unread, nil
}

func (f *fakeNotifs) Delete(ctx context.Context, id, recipientID string) error {
	for i, n := range f.list {
		if n.ID == id && n.RecipientID == recipientID {
			f.list = append(f.list[:i], f.list[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return data.ErrNotificationNotFound
}

// liveConn stands in for a websocket connection in the hub.
type liveConn struct {
	events []any
}

func (c *liveConn) Send(v any) error {
	c.events = append(c.events, v)
	return nil
}

func (c *liveConn) Close() error { return nil }

type testEnv struct {
	users   *fakeUsers
	msgs    *fakeMsgs
	notifs  *fakeNotifs
	hub     *hub.Hub
	auth    *auth.JWTManager
	router  http.Handler
	limiter *middleware.LimiterStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:   newFakeUsers(),
		msgs:    &fakeMsgs{},
		notifs:  &fakeNotifs{},
		hub:     hub.New(),
		auth:    auth.NewJWTManager("api-test-secret", time.Hour),
		limiter: middleware.NewLimiterStore(600, 100, time.Minute),
	}
	t.Cleanup(env.limiter.Stop)

	srv := NewServer(env.users, env.msgs, env.notifs, env.auth, env.hub, env.limiter, []string{"*"})
	env.router = srv.Router(http.NotFoundHandler())
	return env
}

// seedUser registers a user directly in the fake store and returns it
// with a valid token.
func (e *testEnv) seedUser(t *testing.T, name, email, password string) (*data.User, string) {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	require.NoError(t, err)

	u := &data.User{
		ID:       bson.NewObjectID(),
		Name:     name,
		Email:    email,
		Password: hashed,
		Role:     data.RoleStudent,
	}
	e.users.add(u)

	token, _, err := e.auth.GenerateToken(u.ID.Hex(), u.Name, u.Role)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func TestRegisterCreatesAccount(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "long enough password",
	})
	req.Equal(http.StatusCreated, w.Code)

	var resp struct {
		Token string     `json:"token"`
		User  *data.User `json:"user"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.NotEmpty(resp.Token)
	// Role defaults to student when omitted.
	req.Equal(data.RoleStudent, resp.User.Role)

	claims, err := env.auth.VerifyToken(resp.Token)
	req.NoError(err)
	req.Equal(resp.User.ID.Hex(), claims.UserID)

	// The hash never leaves the server.
	req.NotContains(w.Body.String(), "password")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seedUser(t, "Alice", "alice@example.com", "some password")

	w := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name":     "Alice Again",
		"email":    "alice@example.com",
		"password": "another password",
	})
	req.Equal(http.StatusConflict, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"short password", map[string]string{"name": "A", "email": "a@example.com", "password": "short"}},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email", "password": "long enough"}},
		{"bad role", map[string]string{"name": "A", "email": "a@example.com", "password": "long enough", "role": "superuser"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/auth/register", "", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seedUser(t, "Alice", "alice@example.com", "correct password")

	w := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct password",
	})
	req.Equal(http.StatusOK, w.Code)

	// Wrong password and unknown email get the same answer.
	w = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong password",
	})
	req.Equal(http.StatusUnauthorized, w.Code)
	wrongPass := w.Body.String()

	w = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever password",
	})
	req.Equal(http.StatusUnauthorized, w.Code)
	req.JSONEq(wrongPass, w.Body.String())
}

func TestLoginRateLimited(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	limiter := middleware.NewLimiterStore(1, 1, time.Minute)
	defer limiter.Stop()
	srv := NewServer(env.users, env.msgs, env.notifs, env.auth, env.hub, limiter, []string{"*"})
	router := srv.Router(http.NotFoundHandler())

	body := map[string]string{"email": "alice@example.com", "password": "some password"}
	do := func() int {
		var buf bytes.Buffer
		req.NoError(json.NewEncoder(&buf).Encode(body))
		r := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w.Code
	}

	req.Equal(http.StatusUnauthorized, do())
	req.Equal(http.StatusTooManyRequests, do())
}

func TestAuthenticatedRoutesRejectAnonymous(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users"},
		{http.MethodGet, "/contacts"},
		{http.MethodGet, "/messages?with=bob"},
		{http.MethodPost, "/messages"},
		{http.MethodGet, "/notifications"},
		{http.MethodPatch, "/notifications/read-all"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(t, p.method, p.path, "", nil)
			require.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestCreateMessageDeliversLive(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	sender, token := env.seedUser(t, "Alice", "alice@example.com", "some password")
	receiver, _ := env.seedUser(t, "Bob", "bob@example.com", "some password")

	conn := &liveConn{}
	env.hub.Register(receiver.ID.Hex(), conn)

	w := env.do(t, http.MethodPost, "/messages", token, map[string]string{
		"receiverId": receiver.ID.Hex(),
		"content":    "hello bob",
	})
	req.Equal(http.StatusCreated, w.Code)

	req.Len(env.msgs.saved, 1)
	// The sender identity comes from the token, never the body.
	req.Equal(sender.ID.Hex(), env.msgs.saved[0].SenderID)
	req.Len(conn.events, 1)
}

func TestCreateMessageUnknownRecipient(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	_, token := env.seedUser(t, "Alice", "alice@example.com", "some password")

	w := env.do(t, http.MethodPost, "/messages", token, map[string]string{
		"receiverId": bson.NewObjectID().Hex(),
		"content":    "hello",
	})
	req.Equal(http.StatusNotFound, w.Code)
	req.Empty(env.msgs.saved)
}

func TestListMessagesRequiresPartner(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	_, token := env.seedUser(t, "Alice", "alice@example.com", "some password")

	w := env.do(t, http.MethodGet, "/messages", token, nil)
	req.Equal(http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/messages?with=bob", token, nil)
	req.Equal(http.StatusOK, w.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	user, token := env.seedUser(t, "Alice", "alice@example.com", "some password")

	env.notifs.list = []*data.Notification{
		{ID: "n1", RecipientID: user.ID.Hex(), Kind: data.NotifyTask, Message: "task assigned"},
	}
	env.notifs.unread = 3

	w := env.do(t, http.MethodGet, "/notifications", token, nil)
	req.Equal(http.StatusOK, w.Code)

	w = env.do(t, http.MethodPatch, "/notifications/n1/read", token, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal([]string{"n1"}, env.notifs.read)

	w = env.do(t, http.MethodPatch, "/notifications/unknown/read", token, nil)
	req.Equal(http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/notifications/read-all", token, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"updated":3`)

	w = env.do(t, http.MethodDelete, "/notifications/n1", token, nil)
	req.Equal(http.StatusNoContent, w.Code)
	req.Equal([]string{"n1"}, env.notifs.deleted)

	w = env.do(t, http.MethodDelete, "/notifications/n1", token, nil)
	req.Equal(http.StatusNotFound, w.Code)
}

func TestCreateNotificationDefaultsKind(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	_, token := env.seedUser(t, "Alice", "alice@example.com", "some password")

	w := env.do(t, http.MethodPost, "/notifications", token, map[string]string{
		"userId":  "bob",
		"message": "heads up",
	})
	req.Equal(http.StatusCreated, w.Code)
	req.Len(env.notifs.saved, 1)
	req.Equal(data.NotifySystem, env.notifs.saved[0].Kind)

	w = env.do(t, http.MethodPost, "/notifications", token, map[string]string{
		"userId":  "bob",
		"message": "heads up",
		"type":    "carrier-pigeon",
	})
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestContactsJoinsPresenceAndHistory(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	_, token := env.seedUser(t, "Alice", "alice@example.com", "some password")
	bob, _ := env.seedUser(t, "Bob", "bob@example.com", "some password")
	carol, _ := env.seedUser(t, "Carol", "carol@example.com", "some password")

	lastAt := time.Now().UTC().Truncate(time.Millisecond)
	env.msgs.summaries = []*data.PartnerSummary{
		{PartnerID: bob.ID.Hex(), LastMessage: "see you", LastMessageAt: lastAt},
	}
	env.hub.Register(carol.ID.Hex(), &liveConn{})

	w := env.do(t, http.MethodGet, "/contacts", token, nil)
	req.Equal(http.StatusOK, w.Code)

	var resp struct {
		Contacts []*data.Contact `json:"contacts"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Len(resp.Contacts, 2)

	byName := map[string]*data.Contact{}
	for _, c := range resp.Contacts {
		byName[c.Name] = c
	}

	req.Equal("see you", byName["Bob"].LastMessage)
	req.NotNil(byName["Bob"].LastMessageAt)
	req.False(byName["Bob"].Online)

	req.True(byName["Carol"].Online)
	req.Empty(byName["Carol"].LastMessage)
}
