package handlers

import (
	"context"

	"github.com/kiliankoe/threader/pkg/session"
	"github.com/kiliankoe/threader/pkg/threads"
)

type SessionService interface {
	Start(ctx context.Context, raw string, opts threads.Options) (*session.Session, error)
	Continue(ctx context.Context, id string, opts threads.Options) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

type URLParser interface {
	Parse(raw string) (*threads.ParsedURL, error)
}
