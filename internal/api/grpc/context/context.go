package context

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying per-request values.
const (
	requestIDKey string = "x-request-id"
	callerKey    string = "x-caller"
)

// Manager represents a gRPC context manager.
// It stores request values in incoming metadata so handlers and interceptors read them the same way.
type Manager struct{}

// NewManager creates a new gRPC context manager instance.
//
// Returns a pointer to the newly created Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetRequestIDToContext sets the request id in the gRPC context metadata.
// The incoming metadata is copied, so metadata shared with the caller is left untouched.
//
// Parameters:
//   - ctx: The gRPC context
//   - requestID: The request id to set in the context
//
// Returns a new context with the request id in incoming metadata.
func (m *Manager) SetRequestIDToContext(ctx context.Context, requestID string) context.Context {
	return m.set(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext retrieves the request id from gRPC context metadata.
//
// Parameters:
//   - ctx: The gRPC context
//
// Returns the request id and a boolean indicating if a non-empty id was found.
func (m *Manager) GetRequestIDFromContext(ctx context.Context) (string, bool) {
	return m.get(ctx, requestIDKey)
}

// SetCallerToContext records which authenticated service made the call.
// The authentication middleware sets it once the service token is accepted.
//
// Parameters:
//   - ctx: The gRPC context
//   - caller: The name of the calling service
//
// Returns a new context with the caller in incoming metadata.
func (m *Manager) SetCallerToContext(ctx context.Context, caller string) context.Context {
	return m.set(ctx, callerKey, caller)
}

// GetCallerFromContext retrieves the authenticated caller from gRPC context metadata.
// Handlers use it to attribute writes in their logs.
//
// Parameters:
//   - ctx: The gRPC context
//
// Returns the caller name and a boolean indicating if a caller was found.
func (m *Manager) GetCallerFromContext(ctx context.Context) (string, bool) {
	return m.get(ctx, callerKey)
}

func (m *Manager) set(ctx context.Context, key, value string) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.New(map[string]string{key: value})
	} else {
		md = md.Copy()
		md.Set(key, value)
	}

	return metadata.NewIncomingContext(ctx, md)
}

func (m *Manager) get(ctx context.Context, key string) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}

	values := md.Get(key)
	if len(values) == 0 || values[0] == "" {
		return "", false
	}

	return values[0], true
}
