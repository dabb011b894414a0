// internal/pkg/signature/middleware.go
package signature

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"bazaar/internal/pkg/logger"
)

// Middleware rejects requests that are not correctly signed. When devBypass
// is true a request may instead present the x-internal-bypass header; this is
// for local development only and the production profile disables it.
func Middleware(secret string, devBypass bool, next http.Handler) http.Handler {
	secretBytes := []byte(secret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if devBypass && r.Header.Get(HeaderDevBypass) != "" {
			next.ServeHTTP(w, r)
			return
		}

		ts := r.Header.Get(HeaderTimestamp)
		presented := r.Header.Get(HeaderSignature)
		if ts == "" || presented == "" {
			unauthorized(w, "missing signature headers")
			return
		}

		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			unauthorized(w, "invalid timestamp")
			return
		}
		skew := time.Since(time.Unix(unix, 0))
		if skew > MaxSkew || skew < -MaxSkew {
			unauthorized(w, "timestamp outside allowed window")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			unauthorized(w, "unreadable body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !Verify(secretBytes, ts, r.Method, r.URL.Path, body, presented) {
			logger.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("rejected internal call with bad signature")
			unauthorized(w, "signature mismatch")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
