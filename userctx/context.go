package userctx

import "context"

// Context key type
type contextKey string

const usernameKey contextKey = "username"
const userEmailKey contextKey = "user_email"
const UserIDKey contextKey = "user_id"

// SetUsername adds the current username to request context
func SetUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// GetUsername retrieves the current username from request context
func GetUsername(ctx context.Context) string {
	if name, ok := ctx.Value(usernameKey).(string); ok {
		return name
	}
	return ""
}

// SetUserEmail adds the current user's email to request context
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// GetUserEmail retrieves the current user's email from request context
func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(userEmailKey).(string); ok {
		return email
	}
	return ""
}

// SetUserID adds the current user ID to request context
func SetUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// GetUserID retrieves the current user ID from request context
func GetUserID(ctx context.Context) int {
	if id, ok := ctx.Value(UserIDKey).(int); ok {
		return id
	}
	return 0
}
