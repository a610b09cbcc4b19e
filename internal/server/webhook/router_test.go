package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/limiter"
	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/repository/memory"
	"github.com/and161185/userdir/internal/service"
	"github.com/and161185/userdir/internal/telegram"
)

type fakeIssuer struct {
	res   service.Result
	err   error
	calls []telegram.Message
}

func (f *fakeIssuer) Execute(_ context.Context, msg telegram.Message) (service.Result, error) {
	f.calls = append(f.calls, msg)
	return f.res, f.err
}

type fakeLimiter struct {
	allow    bool
	retry    time.Duration
	allowErr error
	blocked  bool

	successes, failures int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return l.allow, l.retry, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string) error {
	l.successes++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string) (bool, time.Duration, error) {
	l.failures++
	return l.blocked, 0, nil
}

const secret = "hook-secret"

func update(text, chatType string) string {
	return fmt.Sprintf(`{"update_id":1,"message":{"message_id":9,"from":{"id":42},"chat":{"id":100,"type":%q},"text":%q}}`, chatType, text)
}

func do(t *testing.T, h http.Handler, body, hdr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	if hdr != "" {
		req.Header.Set(SecretHeader, hdr)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(t *testing.T, iss Issuer, lim limiter.Limiter) http.Handler {
	t.Helper()
	log := zaptest.NewLogger(t)
	return NewRouter(NewHandler(iss, lim, log, Options{Secret: secret}), log)
}

func TestWebhook_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		res         service.Result
		err         error
		want        int
		wantBody    string
		wantSuccess int
		wantFailure int
	}{
		{"ok", service.Result{Status: service.StatusOK}, nil, http.StatusOK, "ok", 1, 0},
		{"forbidden", service.Result{Status: service.StatusForbidden}, nil, http.StatusOK, "forbidden", 0, 1},
		{"not found", service.Result{Status: service.StatusNotFound}, nil, http.StatusOK, "not_found", 0, 1},
		{"integrity", service.Result{}, fmt.Errorf("lookup: %w", errs.ErrIntegrity), http.StatusBadGateway, "error", 0, 0},
		{"transport", service.Result{}, fmt.Errorf("%w: scan", errs.ErrTransport), http.StatusInternalServerError, "error", 0, 0},
		{"invalid", service.Result{}, errs.ErrInvalidArgument, http.StatusBadRequest, "error", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iss := &fakeIssuer{res: tc.res, err: tc.err}
			lim := &fakeLimiter{allow: true}
			rec := do(t, newTestRouter(t, iss, lim), update("/create_api_key", "private"), secret)

			require.Equal(t, tc.want, rec.Code)
			var body response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, tc.wantBody, body.Status)
			require.Len(t, iss.calls, 1)
			require.Equal(t, "42", iss.calls[0].SenderID())
			require.Equal(t, tc.wantSuccess, lim.successes)
			require.Equal(t, tc.wantFailure, lim.failures)
		})
	}
}

func TestWebhook_IgnoresOtherUpdates(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{}
	h := newTestRouter(t, iss, nil)

	for _, body := range []string{
		`{"update_id":1}`,
		update("hello", "private"),
		update("/create_api_keys", "private"),
		update("", "private"),
		`{"update_id":2,"message":{"message_id":1,"chat":{"id":1,"type":"channel"},"text":"/create_api_key"}}`,
	} {
		rec := do(t, h, body, secret)
		require.Equal(t, http.StatusOK, rec.Code, body)
	}
	require.Empty(t, iss.calls)
}

func TestWebhook_CommandVariants(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{res: service.Result{Status: service.StatusOK}}
	h := newTestRouter(t, iss, nil)

	for _, text := range []string{"/create_api_key", "/create_api_key@userdir_bot", "  /create_api_key now"} {
		require.Equal(t, http.StatusOK, do(t, h, update(text, "private"), secret).Code)
	}
	require.Len(t, iss.calls, 3)
}

func TestWebhook_SecretAndBody(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{}
	h := newTestRouter(t, iss, nil)

	require.Equal(t, http.StatusUnauthorized, do(t, h, update("/create_api_key", "private"), "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, h, update("/create_api_key", "private"), "wrong").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, "{not json", secret).Code)
	require.Empty(t, iss.calls)
}

func TestWebhook_RateLimited(t *testing.T) {
	t.Parallel()

	iss := &fakeIssuer{}
	rec := do(t, newTestRouter(t, iss, &fakeLimiter{retry: 90 * time.Second}), update("/create_api_key", "private"), secret)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "90", rec.Header().Get("Retry-After"))
	require.Empty(t, iss.calls)

	rec = do(t, newTestRouter(t, iss, &fakeLimiter{allowErr: errors.New("db down")}), update("/create_api_key", "private"), secret)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, iss.calls)
}

func TestWebhook_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestRouter(t, &fakeIssuer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

type captureNotifier struct{ sent []telegram.OutboundMessage }

func (n *captureNotifier) SendMessage(_ context.Context, m telegram.OutboundMessage) error {
	n.sent = append(n.sent, m)
	return nil
}

func TestWebhook_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	tbl := memory.NewTable(model.AttrUUID)
	dir := service.NewDirectoryService(tbl, log)
	u, err := dir.Create(ctx, model.User{ExternalID: "42", Username: "ann"})
	require.NoError(t, err)

	n := &captureNotifier{}
	h := NewRouter(NewHandler(service.NewAPIKeyIssuer(dir, n, log), nil, log, Options{Secret: secret}), log)

	rec := do(t, h, update("/create_api_key", "private"), secret)
	require.Equal(t, http.StatusOK, rec.Code)
	var body response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)

	got, err := dir.Get(ctx, u.UUID)
	require.NoError(t, err)
	require.True(t, got.HasAPIKey())
	require.Len(t, n.sent, 1)
	require.True(t, n.sent[0].ProtectContent)
	require.Contains(t, n.sent[0].Text, got.APIKey)

	// replay is rejected and the key is kept
	rec = do(t, h, update("/create_api_key", "private"), secret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"forbidden"`)
	again, err := dir.Get(ctx, u.UUID)
	require.NoError(t, err)
	require.Equal(t, got.APIKey, again.APIKey)
	require.Equal(t, service.NoticeAlreadyIssued, n.sent[1].Text)

	rec = do(t, h, update("/create_api_key", "group"), secret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"forbidden"`)
	require.Equal(t, service.NoticePrivateOnly, n.sent[2].Text)
}
