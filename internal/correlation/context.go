// Package correlation provides the identity object that links telemetry
// belonging to one logical request or incident across service boundaries.
package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Propagation header names. Downstream services read and forward these
// verbatim.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderTraceID       = "X-Trace-ID"
	HeaderUserIDHash    = "X-User-ID-Hash"
	HeaderTagPrefix     = "X-Correlation-Tag-"

	userHashPrefix = "usr_hash_"
)

// Context threads a correlation ID, optional caller identifiers, and
// free-form tags through a request's lifetime. It is a value object: once
// created the correlation ID never changes, and copies may be shared
// read-only across concurrent operations.
type Context struct {
	CorrelationID string            `json:"correlation_id"`
	RequestID     string            `json:"request_id,omitempty"`
	TraceID       string            `json:"trace_id,omitempty"`
	UserIDHash    string            `json:"user_id_hash,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Options carries optional caller-supplied identity for a new context.
type Options struct {
	RequestID string
	TraceID   string
	// UserID is hashed immediately and discarded; the raw value is never
	// retained, logged, or serialized.
	UserID string
	Tags   map[string]string
}

// New creates a context with a freshly generated 128-bit correlation ID.
func New(opts Options) Context {
	ctx := Context{
		CorrelationID: NewCorrelationID(),
		RequestID:     opts.RequestID,
		TraceID:       opts.TraceID,
		CreatedAt:     time.Now().UTC(),
	}
	if opts.UserID != "" {
		ctx.UserIDHash = HashUserID(opts.UserID)
	}
	if len(opts.Tags) > 0 {
		ctx.Tags = make(map[string]string, len(opts.Tags))
		for k, v := range opts.Tags {
			ctx.Tags[k] = v
		}
	}
	return ctx
}

// NewCorrelationID returns a random 128-bit identifier, hex encoded.
func NewCorrelationID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// HashUserID one-way hashes a raw user identifier for privacy. The result
// is not reversible and is safe to store and propagate.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return userHashPrefix + hex.EncodeToString(sum[:])[:16]
}

// Headers serializes the context into flat header key-value pairs for
// propagation to downstream services. Correlation, request, and trace IDs
// round-trip losslessly. Tags are emitted as one header each; transports
// that cap header count may drop some of them. A reconstructed context is
// only guaranteed to carry the identifiers.
func (c Context) Headers() map[string]string {
	headers := map[string]string{
		HeaderCorrelationID: c.CorrelationID,
	}
	if c.RequestID != "" {
		headers[HeaderRequestID] = c.RequestID
	}
	if c.TraceID != "" {
		headers[HeaderTraceID] = c.TraceID
	}
	if c.UserIDHash != "" {
		headers[HeaderUserIDHash] = c.UserIDHash
	}
	for k, v := range c.Tags {
		headers[HeaderTagPrefix+k] = v
	}
	return headers
}

// FromHeaders reconstructs a context from propagation headers. It reports
// false when no correlation ID is present.
func FromHeaders(headers map[string]string) (Context, bool) {
	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		normalized[strings.ToLower(k)] = v
	}

	correlationID := normalized[strings.ToLower(HeaderCorrelationID)]
	if correlationID == "" {
		return Context{}, false
	}

	ctx := Context{
		CorrelationID: correlationID,
		RequestID:     normalized[strings.ToLower(HeaderRequestID)],
		TraceID:       normalized[strings.ToLower(HeaderTraceID)],
		UserIDHash:    normalized[strings.ToLower(HeaderUserIDHash)],
		CreatedAt:     time.Now().UTC(),
	}

	prefix := strings.ToLower(HeaderTagPrefix)
	for k, v := range normalized {
		if strings.HasPrefix(k, prefix) {
			if ctx.Tags == nil {
				ctx.Tags = make(map[string]string)
			}
			ctx.Tags[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return ctx, true
}
