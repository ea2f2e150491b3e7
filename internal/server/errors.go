// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// apiError converts a coded error into a huma problem response. The status
// comes from the code's reason; the code itself travels as an error detail
// so clients can branch on it.
func (s *Server) apiError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return huma.NewError(499, "request cancelled")
	}
	status := pawerr.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("api request failed", "op", op, "code", pawerr.CodeOf(err), "error", err)
	} else {
		s.log.Debug("api request rejected", "op", op, "code", pawerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, err.Error(), &huma.ErrorDetail{
		Message:  "error code",
		Location: "code",
		Value:    string(pawerr.CodeOf(err)),
	})
}
