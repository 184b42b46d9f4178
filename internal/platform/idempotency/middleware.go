package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Yonad91/vital-events-sub002/internal/platform/auth"
	"github.com/Yonad91/vital-events-sub002/internal/platform/httpx"
)

const (
	// HeaderName carries the client chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks a response served from a stored record.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 255
	// maxBufferedBody bounds the bytes read for fingerprinting. Larger bodies bypass the guard
	// and reach the handler, which enforces its own limit.
	maxBufferedBody = 8 << 20
)

// Logger receives structured events from the middleware.
type Logger func(ctx context.Context, event string, fields map[string]any)

type middlewareConfig struct {
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithTTL sets how long a successful response stays replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger installs the event logger.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// Middleware guards POST requests that carry an Idempotency-Key header. Requests without the
// header pass through untouched. Keys are scoped to the authenticated user, only 2xx responses are
// recorded, and any other outcome releases the key for a retry.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := func(ctx context.Context, event string, fields map[string]any) {
		if cfg.logger != nil {
			cfg.logger(ctx, event, fields)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_idempotency_key", "Idempotency-Key must be at most 255 characters"))
				return
			}

			body, complete, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "unable to read request body"))
				return
			}
			if !complete {
				next.ServeHTTP(w, r)
				return
			}

			user := requester(ctx)
			fingerprint := requestFingerprint(r, user, body)
			scoped := user + "|" + key

			state, record, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "Idempotency-Key was already used for a different request", http.StatusConflict))
				return
			case err != nil:
				log(ctx, "idempotency.reserve_failed", map[string]any{"error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to check Idempotency-Key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				log(ctx, "idempotency.replayed", map[string]any{"status": record.Status, "userId": user})
				writeRecord(w, record)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this Idempotency-Key is still running", http.StatusConflict))
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				if err := store.Release(context.WithoutCancel(ctx), scoped, fingerprint); err != nil {
					log(ctx, "idempotency.release_failed", map[string]any{"error": err.Error()})
				}
				return
			}
			now := cfg.clock().UTC()
			completed := Record{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				CreatedAt:   now,
				ExpiresAt:   now.Add(cfg.ttl),
			}
			if err := store.Complete(context.WithoutCancel(ctx), scoped, fingerprint, completed); err != nil {
				log(ctx, "idempotency.complete_failed", map[string]any{"error": err.Error()})
			}
		})
	}
}

// bufferBody reads the body for fingerprinting and restores it for the handler. complete is false
// when the body exceeds maxBufferedBody; the request then carries the unread remainder.
func bufferBody(r *http.Request) (data []byte, complete bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true, nil
	}
	data, err = io.ReadAll(io.LimitReader(r.Body, maxBufferedBody+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > maxBufferedBody {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
		return nil, false, nil
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, true, nil
}

func requester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func requestFingerprint(r *http.Request, user string, body []byte) string {
	bodySum := sha256.Sum256(body)
	sum := sha256.Sum256([]byte(r.Method + "|" + r.URL.Path + "|" + user + "|" + hex.EncodeToString(bodySum[:])))
	return hex.EncodeToString(sum[:])
}

func writeRecord(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

// recorder passes the response through while keeping a copy of the body.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(data []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
