package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	ingestTimestampHeader = "X-Ingest-Timestamp"
	ingestSignatureHeader = "X-Ingest-Signature"
	ingestMaxSkew         = 5 * time.Minute
)

// IngestAuthMiddleware authenticates sensor ingest requests with a shared
// HMAC secret. The signature covers the unix timestamp and raw body.
func IngestAuthMiddleware(secret []byte, next http.Handler) http.Handler {
	if len(secret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tsHeader := r.Header.Get(ingestTimestampHeader)
		sigHeader := r.Header.Get(ingestSignatureHeader)
		if tsHeader == "" || sigHeader == "" {
			http.Error(w, "missing ingest signature", http.StatusUnauthorized)
			return
		}
		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			http.Error(w, "invalid ingest timestamp", http.StatusUnauthorized)
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < -ingestMaxSkew || skew > ingestMaxSkew {
			http.Error(w, "ingest timestamp out of range", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		expected := ComputeIngestSignature(secret, tsHeader, body)
		if !hmac.Equal([]byte(expected), []byte(sigHeader)) {
			http.Error(w, "invalid ingest signature", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ComputeIngestSignature computes the hex HMAC-SHA256 over "timestamp\nbody".
func ComputeIngestSignature(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
