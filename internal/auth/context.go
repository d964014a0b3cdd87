package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxIdentity ctxKey = iota

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFrom returns the identity injected by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

func UserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", errors.New("user_id not in context")
	}
	return id.UserID, nil
}

func ClinicID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxIdentity).(Identity)
	if id.ClinicID == "" {
		return "", errors.New("clinic_id not in context")
	}
	return id.ClinicID, nil
}

func Role(ctx context.Context) (string, error) {
	id, _ := ctx.Value(ctxIdentity).(Identity)
	if id.Role == "" {
		return "", errors.New("role not in context")
	}
	return id.Role, nil
}
