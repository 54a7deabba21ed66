package interactions

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"

	"warden/internal/platform/logger"
)

// VerifySignature authenticates webhook requests with the application's
// ed25519 public key. The platform signs timestamp+body; anything that does
// not verify is rejected before parsing.
func VerifySignature(hexKey string) func(http.Handler) http.Handler {
	pub, err := hex.DecodeString(hexKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		logger.Get().Panic().Msg("invalid interactions public key")
	}
	key := ed25519.PublicKey(pub)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, err := hex.DecodeString(r.Header.Get("X-Signature-Ed25519"))
			if err != nil || len(sig) != ed25519.SignatureSize {
				http.Error(w, "bad signature", http.StatusUnauthorized)
				return
			}
			ts := r.Header.Get("X-Signature-Timestamp")

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()

			if !ed25519.Verify(key, append([]byte(ts), body...), sig) {
				http.Error(w, "invalid request signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
