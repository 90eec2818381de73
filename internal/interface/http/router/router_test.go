package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xiebiao/library/internal/application/catalog"
	"github.com/xiebiao/library/internal/application/lending"
	appuser "github.com/xiebiao/library/internal/application/user"
	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/user"
	"github.com/xiebiao/library/internal/infrastructure/persistence/memory"
	"github.com/xiebiao/library/internal/interface/http/handler"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	"github.com/xiebiao/library/internal/interface/http/router"
	"github.com/xiebiao/library/pkg/jwt"
)

func init() {
	user.HashCost = bcrypt.MinCost
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type page struct {
	List  []map[string]interface{} `json:"list"`
	Total int64                    `json:"total"`
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	store  *memory.Store
}

func newServer(t *testing.T, health func(ctx context.Context) error) *server {
	t.Helper()
	store := memory.NewStore()
	sessions := memory.NewSessionStore()
	jm := jwt.NewManager("test-secret", time.Hour, 24*time.Hour)

	users := user.NewService(store.Users(), []string{"librarian@example.com"})
	lendingSvc := lending.NewService(store, lending.Repositories{
		Books:         store.Books(),
		Users:         store.Users(),
		Inventory:     store.Inventory(),
		InventoryLogs: store.InventoryLogs(),
		Checkouts:     store.Checkouts(),
		Archives:      store.Archives(),
	})
	catalogSvc := catalog.NewService(store, book.NewService(store.Books()), catalog.Repositories{
		Books:         store.Books(),
		Inventory:     store.Inventory(),
		InventoryLogs: store.InventoryLogs(),
		Checkouts:     store.Checkouts(),
		Archives:      store.Archives(),
	}, nil)

	engine := router.New(router.Options{
		Mode:          gin.TestMode,
		EnableMetrics: true,
		EnableSwagger: true,
		HealthCheck:   health,
	}, router.Handlers{
		User: handler.NewUserHandler(
			appuser.NewRegisterUseCase(users),
			appuser.NewLoginUseCase(users, jm, sessions),
			appuser.NewLogoutUseCase(sessions, jm),
			appuser.NewRefreshUseCase(jm),
			appuser.NewChangePasswordUseCase(users, sessions, jm),
			appuser.NewGetProfileUseCase(store.Users()),
			appuser.NewDeleteUserUseCase(store, store.Users(), store.Checkouts(), store.Archives(), sessions),
		),
		Book:     handler.NewBookHandler(catalogSvc, lendingSvc),
		Checkout: handler.NewCheckoutHandler(lendingSvc),
		History:  handler.NewHistoryHandler(lendingSvc),
		Auth:     middleware.NewAuthMiddleware(jm, sessions),
	})
	return &server{t: t, engine: engine, store: store}
}

func (s *server) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

// signup 注册并登录,返回用户ID和Access Token
func (s *server) signup(email string) (uint, string) {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"email": email, "password": "secret123", "nickname": "reader",
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)

	code, env = s.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(s.t, http.StatusOK, code, env.Message)

	var login struct {
		User        struct{ ID uint } `json:"user"`
		AccessToken string            `json:"access_token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &login))
	return login.User.ID, login.AccessToken
}

func (s *server) createBook(token, title, isbn string, copies int) uint {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/books", token, map[string]interface{}{
		"title": title, "author": "frank herbert", "isbn": isbn, "copies": copies,
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)
	var b struct{ ID uint }
	require.NoError(s.t, json.Unmarshal(env.Data, &b))
	return b.ID
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestLendingFlow(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")
	_, reader := s.signup("reader@example.com")

	bookID := s.createBook(admin, "dune", "0441172717", 2)

	code, env := s.do(http.MethodGet, "/api/v1/books", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list page
	decode(t, env, &list)
	require.Equal(t, int64(1), list.Total)
	assert.Equal(t, "Dune", list.List[0]["title"])
	assert.Equal(t, "Frank Herbert", list.List[0]["author"])

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/checkout", bookID), reader, nil)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var c struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	decode(t, env, &c)
	assert.Equal(t, "pending", c.Status)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/checkout", bookID), reader, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40011, env.Code)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/books/%d/inventory", bookID), "", nil)
	require.Equal(t, http.StatusOK, code)
	var inv struct {
		Copies    int  `json:"copies"`
		Available bool `json:"available"`
	}
	decode(t, env, &inv)
	assert.Equal(t, 1, inv.Copies)
	assert.True(t, inv.Available)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/return", bookID), reader, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var archived struct {
		SourceCheckoutID uint `json:"source_checkout_id"`
	}
	decode(t, env, &archived)
	assert.Equal(t, c.ID, archived.SourceCheckoutID)

	code, env = s.do(http.MethodGet, "/api/v1/history", reader, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &list)
	assert.Equal(t, int64(1), list.Total)

	code, env = s.do(http.MethodGet, "/api/v1/checkouts", reader, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &list)
	assert.Zero(t, list.Total)

	// 有借阅历史的图书不能删除
	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", bookID), admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40015, env.Code)
}

func TestCheckoutLifecycle_Librarian(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")
	readerID, reader := s.signup("reader@example.com")
	bookID := s.createBook(admin, "Emma", "0306406152", 1)

	code, env := s.do(http.MethodPost, "/api/v1/checkouts", admin, map[string]uint{"book_id": bookID, "user_id": readerID})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var c struct {
		ID     uint `json:"id"`
		UserID uint `json:"user_id"`
	}
	decode(t, env, &c)
	assert.Equal(t, readerID, c.UserID)

	// 最后一本已借出,列表默认不再显示
	code, env = s.do(http.MethodGet, "/api/v1/books", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list page
	decode(t, env, &list)
	assert.Zero(t, list.Total)

	code, env = s.do(http.MethodGet, "/api/v1/books?all=true", "", nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &list)
	assert.Equal(t, int64(1), list.Total)

	path := fmt.Sprintf("/api/v1/checkouts/%d", c.ID)
	code, env = s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40014, env.Code)

	code, _ = s.do(http.MethodPatch, path+"/status", admin, map[string]string{"status": "Overdue"})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40013, env.Code)

	code, env = s.do(http.MethodPost, path+"/return", reader, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodPost, path+"/return", reader, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40012, env.Code)

	code, env = s.do(http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var first struct{ ID uint }
	decode(t, env, &first)

	code, env = s.do(http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40404, env.Code)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/books/%d/inventory/logs", bookID), admin, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &list)
	assert.Equal(t, int64(3), list.Total) // restock + checkout + return

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", first.ID), admin, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/history/%d", first.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40405, env.Code)
}

func TestMarkOverdueSweep(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")

	code, env := s.do(http.MethodPost, "/api/v1/checkouts/overdue", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var res struct{ Marked int }
	decode(t, env, &res)
	assert.Zero(t, res.Marked)
}

func TestAuthorization(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")
	_, reader := s.signup("reader@example.com")
	otherID, other := s.signup("other@example.com")
	bookID := s.createBook(admin, "Dune", "0441172717", 3)

	code, env := s.do(http.MethodGet, "/api/v1/checkouts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40100, env.Code)

	code, _ = s.do(http.MethodGet, "/api/v1/checkouts", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/books", reader, map[string]interface{}{
		"title": "Emma", "author": "Jane Austen", "isbn": "0306406152",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 40304, env.Code)

	// 普通读者不能替他人借书
	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/checkout?user_id=%d", bookID, otherID), reader, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/checkout", bookID), other, nil)
	require.Equal(t, http.StatusCreated, code)
	var c struct{ ID uint }
	decode(t, env, &c)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/checkouts/%d", c.ID), reader, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPost, fmt.Sprintf("/api/v1/checkouts/%d/return", c.ID), reader, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/checkouts/%d", c.ID), admin, nil)
	assert.Equal(t, http.StatusOK, code)

	// 有在借记录的用户不能删除
	code, env = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", otherID), admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40016, env.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newServer(t, nil)
	_, reader := s.signup("reader@example.com")

	code, env := s.do(http.MethodGet, "/api/v1/users/me", reader, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	decode(t, env, &me)
	assert.Equal(t, "reader@example.com", me.Email)
	assert.Equal(t, "member", me.Role)

	code, _ = s.do(http.MethodPost, "/api/v1/users/logout", reader, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, "/api/v1/users/me", reader, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40102, env.Code)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t, nil)
	_, reader := s.signup("reader@example.com")
	path := "/api/v1/users/me/password"

	code, env := s.do(http.MethodPut, path, reader, map[string]string{
		"old_password": "wrong1234", "new_password": "newpass456", "confirm_password": "newpass456",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40007, env.Code)

	code, env = s.do(http.MethodPut, path, reader, map[string]string{
		"old_password": "secret123", "new_password": "newpass456", "confirm_password": "newpass789",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40900, env.Code)

	code, env = s.do(http.MethodPut, path, reader, map[string]string{
		"old_password": "secret123", "new_password": "short", "confirm_password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40005, env.Code)

	code, _ = s.do(http.MethodPut, path, "", map[string]string{
		"old_password": "secret123", "new_password": "newpass456", "confirm_password": "newpass456",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPut, path, reader, map[string]string{
		"old_password": "secret123", "new_password": "newpass456", "confirm_password": "newpass456",
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	// 旧Token随之失效
	code, _ = s.do(http.MethodGet, "/api/v1/users/me", reader, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "reader@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40103, env.Code)

	code, env = s.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "reader@example.com", "password": "newpass456",
	})
	assert.Equal(t, http.StatusOK, code, env.Message)
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")

	code, env := s.do(http.MethodPost, "/api/v1/books", admin, map[string]interface{}{
		"title": "Dune", "author": "Frank Herbert", "isbn": "1234567890",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40017, env.Code)

	code, env = s.do(http.MethodPost, "/api/v1/books", admin, map[string]interface{}{
		"title": "Dune", "author": "Frank Herbert", "isbn": "0441172717", "published_date": "1965/08/01",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40900, env.Code)

	s.createBook(admin, "Dune", "0441172717", 0)
	code, env = s.do(http.MethodPost, "/api/v1/books", admin, map[string]interface{}{
		"title": "DUNE", "author": "Someone", "isbn": "0306406152",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40019, env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/books/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40900, env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/books/999", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40402, env.Code)
}

func TestInventoryList(t *testing.T) {
	s := newServer(t, nil)
	_, admin := s.signup("librarian@example.com")
	_, reader := s.signup("reader@example.com")

	dune := s.createBook(admin, "dune", "0441172717", 1)
	emma := s.createBook(admin, "emma", "0306406152", 0)

	code, env := s.do(http.MethodPost, fmt.Sprintf("/api/v1/books/%d/checkout", dune), reader, nil)
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = s.do(http.MethodGet, "/api/v1/inventory?page=1&page_size=1", "", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var list page
	decode(t, env, &list)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.List, 1)
	assert.EqualValues(t, dune, list.List[0]["book_id"])
	assert.EqualValues(t, 0, list.List[0]["copies"])
	assert.Equal(t, false, list.List[0]["available"])

	code, env = s.do(http.MethodGet, "/api/v1/inventory?page=2&page_size=1", reader, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	decode(t, env, &list)
	require.Len(t, list.List, 1)
	assert.EqualValues(t, emma, list.List[0]["book_id"])
}

func TestOpsEndpoints(t *testing.T) {
	s := newServer(t, nil)

	code, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	down := newServer(t, func(context.Context) error { return errors.New("db down") })
	code, _ = down.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
