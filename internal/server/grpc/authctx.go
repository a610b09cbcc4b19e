package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/userdir/internal/auth"
)

type ctxKey string

const callerKey ctxKey = "userdir.caller"

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the authenticated caller from context.
func CallerFromCtx(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(callerKey).(auth.Claims)
	return c, ok
}

// AuthUnary verifies "authorization: Bearer <JWT>" on every call except the
// health service and stores the claims in the request context.
func AuthUnary(signKey []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		claims, err := auth.Parse(signKey, tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(WithCaller(ctx, claims), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
