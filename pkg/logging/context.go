package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey      = "trace_id"
	SubmissionIDKey = "submission_id"
	AuthorKey       = "author"
	ServiceNameKey  = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey(TraceIDKey), traceID)
}

func WithSubmissionID(ctx context.Context, submissionID string) context.Context {
	return context.WithValue(ctx, contextKey(SubmissionIDKey), submissionID)
}

func WithAuthor(ctx context.Context, author string) context.Context {
	return context.WithValue(ctx, contextKey(AuthorKey), author)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, contextKey(ServiceNameKey), serviceName)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetSubmissionID(ctx context.Context) string {
	return stringValue(ctx, SubmissionIDKey)
}

func GetAuthor(ctx context.Context) string {
	return stringValue(ctx, AuthorKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func stringValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

// GetLogFields returns the key/value pairs stored on ctx in a stable order,
// ready to be prepended to a sugared logger call.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []string{TraceIDKey, SubmissionIDKey, AuthorKey, ServiceNameKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
