package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"bagmachine-remote/internal/session"
	"bagmachine-remote/internal/store"
)

// Session is the operator surface of the session controller.
type Session interface {
	Initialize(ctx context.Context) error
	AdjustBagLength(delta int) int
	AdjustSpeed(delta int) int
	CommitBagLength(ctx context.Context) error
	CommitSpeed(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	session Session
	store   store.Store // nil when the database is disabled
	webpush *webpush.Options
	log     *logrus.Entry
}

// NewHandler creates a new API handler.
func NewHandler(sess Session, s store.Store, webpushOptions *webpush.Options, log *logrus.Entry) *Handler {
	return &Handler{
		session: sess,
		store:   s,
		webpush: webpushOptions,
		log:     log,
	}
}
