package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketcore/api/responses"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	pkgredis "github.com/angelmondragon/marketcore/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxKeyLength      = 255
	maxReplayBody     = 1 << 20

	replayTTL       = 24 * time.Hour
	payoutReplayTTL = 7 * 24 * time.Hour
	pendingTTL      = 5 * time.Minute
)

type replayRule struct {
	method string
	path   *regexp.Regexp
	ttl    time.Duration
}

// Order creation dedupes on client_provided_id inside the service and is
// not listed here.
var replayRules = []replayRule{
	{method: http.MethodPost, path: regexp.MustCompile(`^/api/v1/orders/[^/]+/(cancel|status)$`), ttl: replayTTL},
	{method: http.MethodPost, path: regexp.MustCompile(`^/api/v1/vendors/[^/]+/payout$`), ttl: payoutReplayTTL},
}

// replayRecord is either a finished response or, while Pending, the claim
// of the request that is producing it.
type replayRecord struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
	Claim       string `json:"claim,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the state-changing order and payout routes. Requests without the header
// pass straight through. A duplicate that arrives while the first request is
// still running gets 409. 5xx responses and panics release the key so the
// client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			ttl, guarded := routeTTL(r.Method, r.URL.Path)
			if store == nil || !guarded || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBadRequest, "idempotency key too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeBadRequest, err, "read request"))
				return
			}
			if len(body) > maxReplayBody {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBadRequest, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			storeKey := store.IdempotencyKey(replayScope(r), key)
			hash := requestHash(r.Method, body)

			// Claim the key before running the handler so a concurrent
			// duplicate sees the pending marker instead of running it again.
			marker, err := json.Marshal(replayRecord{Pending: true, Claim: uuid.NewString(), RequestHash: hash})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim"))
				return
			}
			claimed, err := store.SetNX(ctx, storeKey, string(marker), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim idempotency key"))
				return
			}
			if !claimed {
				answerClaimed(w, r, store, storeKey, hash, logg)
				return
			}

			recorded := false
			defer func() {
				if recorded {
					return
				}
				if _, err := store.DelIfValue(context.WithoutCancel(ctx), storeKey, string(marker)); err != nil && logg != nil {
					logg.Error(logg.WithField(ctx, "idempotency_key", key), "release idempotency claim", err)
				}
			}()

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(replayRecord{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(context.WithoutCancel(ctx), storeKey, string(payload), ttl)
			}
			if err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "idempotency_key", key), "persist idempotency record", err)
				}
				return
			}
			recorded = true
		})
	}
}

// answerClaimed responds to a request whose key is already held, either by
// a finished response or by a request still in flight.
func answerClaimed(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, storeKey, hash string, logg *logger.Logger) {
	ctx := r.Context()
	stored, err := store.Get(ctx, storeKey)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check idempotency"))
		return
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	default:
		replay(w, record)
	}
}

// replayScope binds a key to the caller and the exact route.
func replayScope(r *http.Request) string {
	return strings.Join([]string{
		strconv.FormatInt(AuthFromContext(r.Context()).UserID, 10),
		r.Method,
		r.URL.Path,
	}, "|")
}

func requestHash(method string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, record replayRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func routeTTL(method, path string) (time.Duration, bool) {
	for _, rule := range replayRules {
		if rule.method == method && rule.path.MatchString(path) {
			return rule.ttl, true
		}
	}
	return 0, false
}
