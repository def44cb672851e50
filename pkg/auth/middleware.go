package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

type contextKey string

const (
	tokenHeader               = "Authorization"
	tokenPrefix               = "Bearer "
	UserClaimsKey  contextKey = "user_claims"
	UserIDKey      contextKey = "user_id"
	PermissionsKey contextKey = "permissions"
)

// NewAuthInterceptor creates a ConnectRPC interceptor for authentication.
func NewAuthInterceptor(signer *Signer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get(tokenHeader)
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing authorization header"))
			}

			if !strings.HasPrefix(authHeader, tokenPrefix) {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid authorization header format"))
			}

			token := strings.TrimPrefix(authHeader, tokenPrefix)
			claims, err := signer.ValidateToken(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}

			userID, err := claims.UserID()
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid token subject"))
			}

			ctx = WithUser(ctx, userID, claims)
			return next(ctx, req)
		}
	}
}

// WithUser stores an authenticated caller in ctx
func WithUser(ctx context.Context, userID int64, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	ctx = context.WithValue(ctx, UserIDKey, userID)
	if claims != nil {
		ctx = context.WithValue(ctx, PermissionsKey, claims.Permissions)
	}
	return ctx
}

// GetUserClaims retrieves the full claims from the context.
func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// GetUserID retrieves the user ID from the context.
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

// MustGetUserID retrieves the user ID and panics when the interceptor did not run.
func MustGetUserID(ctx context.Context) int64 {
	id, ok := GetUserID(ctx)
	if !ok {
		panic("auth: user id missing from context")
	}
	return id
}

// IsAdmin reports whether the caller holds the admin permission
func IsAdmin(ctx context.Context) bool {
	perms, _ := ctx.Value(PermissionsKey).([]string)
	for _, p := range perms {
		if p == PermissionAdmin {
			return true
		}
	}
	return false
}
