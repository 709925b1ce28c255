package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"slotbook/internal/auth"
	"slotbook/internal/booking"
	"slotbook/internal/models"
	"slotbook/internal/services"
	"slotbook/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type nopNotifier struct {
	mu    sync.Mutex
	kinds []models.NotificationKind
}

func (n *nopNotifier) Notify(ctx context.Context, kind models.NotificationKind, appt models.Appointment, extra map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
	token  string
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemoryStore()
	notes := &nopNotifier{}
	svc := booking.NewService(st, notes, nil, logger)
	worker := services.NewReminderWorker(st, notes, services.ReminderOptions{
		Clock: services.ClockFunc(func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }),
	}, logger)

	var (
		tokens *auth.TokenManager
		staff  *auth.StaffAuthenticator
		token  string
	)
	if withAuth {
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
		require.NoError(t, err)
		tokens = auth.NewTokenManager("test-secret", time.Hour)
		staff = auth.NewStaffAuthenticator("admin", string(hash), tokens)
		token, _, err = tokens.GenerateToken("admin", auth.RoleStaff)
		require.NoError(t, err)
	}

	h := New(svc, worker, staff, func(context.Context) error { return nil }, logger)
	r, err := NewRouter(h, RouterOptions{Tokens: tokens, Logger: logger})
	require.NoError(t, err)
	return &testServer{router: r, store: st, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, staff bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if staff && s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func booking9am() map[string]string {
	return map[string]string{
		"name":     "Ada Client",
		"email":    "ada@example.com",
		"phone":    "+15550001111",
		"service":  "Tax consultation",
		"date":     "2026-10-19",
		"timeSlot": "09:00",
	}
}

func TestHomeAndHealth(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, http.MethodGet, "/", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetAvailableSlots(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, http.MethodGet, "/appointment/slots?date=2026-10-24", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"10:00", "11:00", "12:00", "13:00", "14:00"}, body["slots"])
	assert.Equal(t, "10:00 AM", body["labels"].([]any)[0])

	w, body = s.do(t, http.MethodGet, "/appointment/slots?date=2026-10-25", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["slots"])

	w, _ = s.do(t, http.MethodGet, "/appointment/slots", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/appointment/slots?date=tomorrow", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookAppointment(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, http.MethodPost, "/appointment/book", booking9am(), false)
	require.Equal(t, http.StatusCreated, w.Code)
	appt := body["appointment"].(map[string]any)
	assert.Equal(t, "pending", appt["status"])
	assert.Equal(t, "09:00", appt["timeSlot"])

	w, body = s.do(t, http.MethodPost, "/appointment/book", booking9am(), false)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_taken", body["error"])
	assert.Equal(t, false, body["success"])

	sunday := booking9am()
	sunday["date"] = "2026-10-25"
	w, body = s.do(t, http.MethodPost, "/appointment/book", sunday, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_slot", body["error"])

	missing := booking9am()
	delete(missing, "phone")
	w, body = s.do(t, http.MethodPost, "/appointment/book", missing, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", body["error"])

	req := httptest.NewRequest(http.MethodPost, "/appointment/book", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, true)

	w, _ := s.do(t, http.MethodGet, "/appointment/all", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := s.do(t, http.MethodGet, "/appointment/all", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, true)

	w, body := s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "hunter22"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])

	w, _ = s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	open := newTestServer(t, false)
	w, _ = open.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "x"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, true)

	_, body := s.do(t, http.MethodPost, "/appointment/book", booking9am(), false)
	id := body["appointment"].(map[string]any)["id"].(string)

	w, body := s.do(t, http.MethodPut, "/appointment/update/"+id, map[string]string{"status": "confirmed"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", body["appointment"].(map[string]any)["status"])

	w, body = s.do(t, http.MethodPut, "/appointment/update/"+id, map[string]string{"status": "pending"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", body["error"])

	w, _ = s.do(t, http.MethodPut, "/appointment/update/"+id, map[string]string{"status": "archived"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPut, "/appointment/update/"+id, map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPut, "/appointment/update/unknown", map[string]string{"status": "confirmed"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["error"])

	w, body = s.do(t, http.MethodPost, "/appointment/meeting-link/"+id, map[string]string{"meetingLink": "https://meet.google.com/abc-defg-hij"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", body["appointment"].(map[string]any)["actualMeetingLink"])

	w, body = s.do(t, http.MethodPost, "/admin/reminders/run", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{id}, body["reminded"])

	w, body = s.do(t, http.MethodGet, "/appointment/user/ada@example.com", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

type failingRunner struct{}

func (failingRunner) ScanOnce(context.Context) ([]models.Appointment, error) {
	return nil, errors.New("connection refused")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(store.NewMemoryStore(), nil, nil, logger)
	h := New(svc, failingRunner{}, nil, nil, logger)
	r, err := NewRouter(h, RouterOptions{Logger: logger})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/reminders/run", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestRunReminders_DisabledScheduler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(store.NewMemoryStore(), nil, nil, logger)
	r, err := NewRouter(New(svc, nil, nil, nil, logger), RouterOptions{Logger: logger})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/reminders/run", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type ctxRunner struct {
	err error
}

func (r *ctxRunner) ScanOnce(ctx context.Context) ([]models.Appointment, error) {
	r.err = ctx.Err()
	return nil, nil
}

func TestRunReminders_SurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(store.NewMemoryStore(), nil, nil, logger)
	runner := &ctxRunner{}
	r, err := NewRouter(New(svc, runner, nil, nil, logger), RouterOptions{Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/admin/reminders/run", nil).WithContext(ctx)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, runner.err)
}
