package kit

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "kit_user_id"
	TransportKey contextKey = "kit_transport"
	TraceIDKey   contextKey = "kit_trace_id"
)

// Transports that can trigger work. GetTransport defaults to TransportHTTP.
const (
	TransportHTTP      = "http"
	TransportMCP       = "mcp"
	TransportScheduler = "scheduler"
)

// WithUserID stores the authenticated account id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// GetUserID returns the authenticated account id, or "".
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// WithTransport records what triggered the current call.
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok && v != "" {
		return v
	}
	return TransportHTTP
}

// WithTraceID stores the request trace id (see shield.TraceID).
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
