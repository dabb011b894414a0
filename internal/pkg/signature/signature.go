// internal/pkg/signature/signature.go
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Every internal call carries an HMAC-SHA256 signature over
// "{ts}|{METHOD}|{path}|{body}" so services only accept traffic from peers
// holding the shared secret.
const (
	HeaderTimestamp = "x-timestamp"
	HeaderSignature = "x-signature"
	HeaderDevBypass = "x-internal-bypass"

	// MaxSkew bounds how stale a signed timestamp may be, in either
	// direction, before the request is rejected.
	MaxSkew = 5 * time.Minute
)

// Compute returns the hex signature for one request.
func Compute(secret []byte, ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%s|%s|", ts, method, path)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented signature using a constant-time comparison.
func Verify(secret []byte, ts, method, path string, body []byte, presented string) bool {
	expected := Compute(secret, ts, method, path, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}

// Signer signs outbound internal requests.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer around the shared internal secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignRequest stamps x-timestamp and x-signature onto req. body must be the
// exact bytes being sent.
func (s *Signer) SignRequest(req *http.Request, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Compute(s.secret, ts, req.Method, req.URL.Path, body))
}
