// Package webhook serves the Telegram webhook that routes bot commands to
// the API key issuance workflow.
package webhook

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/limiter"
	"github.com/and161185/userdir/internal/service"
	"github.com/and161185/userdir/internal/telegram"
)

// SecretHeader carries the secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// DefaultCommand triggers API key issuance.
const DefaultCommand = "/create_api_key"

// Issuer runs the issuance workflow for one message.
type Issuer interface {
	Execute(ctx context.Context, msg telegram.Message) (service.Result, error)
}

// Options configures the webhook handler.
type Options struct {
	Secret  string // empty disables the header check
	Command string // defaults to DefaultCommand
}

// Handler handles webhook updates.
type Handler struct {
	issuer  Issuer
	lim     limiter.Limiter
	log     *zap.Logger
	secret  string
	command string
}

// NewHandler constructs a Handler. A nil limiter never throttles.
func NewHandler(issuer Issuer, lim limiter.Limiter, log *zap.Logger, o Options) *Handler {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if o.Command == "" {
		o.Command = DefaultCommand
	}
	return &Handler{issuer: issuer, lim: lim, log: log, secret: o.Secret, command: o.Command}
}

// NewRouter mounts the webhook and a health probe.
func NewRouter(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/telegram/webhook", h.Handle)
	return r
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handle processes one update. Updates that are not the issuance command are
// acknowledged with 200 so Telegram does not redeliver them.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if !telegram.VerifySecret(r.Header.Get(SecretHeader), h.secret) {
		writeJSON(w, http.StatusUnauthorized, response{Status: "unauthorized"})
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "bad_request", Error: "malformed update"})
		return
	}
	msg := upd.Message
	if msg == nil || msg.SenderID() == "" || !h.isCommand(msg.Text) {
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
		return
	}

	ctx := r.Context()
	sender := msg.SenderID()
	log := h.log.With(zap.Int64("update_id", upd.UpdateID), zap.String("sender", sender))

	allowed, retry, err := h.lim.Allow(ctx, sender)
	if err != nil {
		log.Error("limiter allow", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{Status: "error"})
		return
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		writeJSON(w, errs.HTTPStatus(errs.ErrRateLimited), response{Status: "rate_limited"})
		return
	}

	res, err := h.issuer.Execute(ctx, *msg)
	if err != nil {
		code := errs.HTTPStatus(err)
		log.Error("issue api key", zap.Error(err), zap.Int("status", code))
		writeJSON(w, code, response{Status: "error", Error: http.StatusText(code)})
		return
	}

	if res.Status == service.StatusOK {
		if err := h.lim.Success(ctx, sender); err != nil {
			log.Warn("limiter success", zap.Error(err))
		}
	} else {
		blocked, _, err := h.lim.Failure(ctx, sender)
		if err != nil {
			log.Warn("limiter failure", zap.Error(err))
		} else if blocked {
			log.Warn("sender blocked")
		}
	}
	log.Info("issuance outcome", zap.Stringer("status", res.Status), zap.String("user", res.UserID))
	// every workflow outcome is final; a non-2xx reply would make Telegram
	// redeliver the update and repeat the notice
	writeJSON(w, http.StatusOK, response{Status: res.Status.String()})
}

// isCommand matches "/cmd" and "/cmd@botname", ignoring trailing arguments.
func (h *Handler) isCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd == h.command
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
