// Package noop accepts every request without checking credentials.
// It backs the "none" auth mode for local development.
package noop

import (
	"context"
	"net/http"

	"github.com/grothkopp/ainb/pkg/auth"
)

// Authenticator votes Yes on everything. The zero value assigns the
// shared anonymous identity; set Subject to tag requests with a fixed
// caller name instead.
type Authenticator struct {
	Subject string
}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	id := auth.Anonymous()
	if a.Subject != "" {
		id.Subject = a.Subject
	}
	return auth.Result{Decision: auth.Yes, Identity: id}
}
