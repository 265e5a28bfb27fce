package server

import (
	"errors"
	"net/http"
	"strings"

	"wavecast/core/auth"
	"wavecast/logger"
	"wavecast/model"

	"github.com/google/uuid"
)

// resolveUser walks the token-resolution steps: header present and well
// formed, token verifies, subject exists, subject active. Expired and
// malformed tokens differ in message only; both are 401.
func (h *APIHandler) resolveUser(r *http.Request) (*model.User, *APIError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errUnauthorized("Authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errUnauthorized("Invalid authorization header format")
	}

	userID, err := h.tokens.ParseToken(parts[1])
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, errUnauthorized("Token expired")
		}
		return nil, errUnauthorized("Invalid token")
	}

	user, err := h.userRepo.FindByID(userID)
	if err != nil {
		logger.Error("failed to resolve token subject", logger.Int64("userId", userID), logger.ErrorField(err))
		return nil, errInternal("Internal server error")
	}
	if user == nil {
		return nil, errUnauthorized("User not found")
	}
	if !user.Active {
		return nil, errUnauthorized("Account deactivated")
	}

	return user, nil
}

// RequireAuth rejects the request unless it carries a valid token for an
// active account. The resolved user is attached to the request context.
func (h *APIHandler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, apiErr := h.resolveUser(r)
		if apiErr != nil {
			h.fail(w, apiErr)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// OptionalAuth runs the same token-resolution steps but never blocks:
// any failure resolves the request to anonymous and control proceeds.
func (h *APIHandler) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, apiErr := h.resolveUser(r)
		if apiErr != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// RequireRoles allows the request only when the authenticated user holds one
// of the given roles. Missing identity fails unauthenticated before the role
// check fails forbidden.
func (h *APIHandler) RequireRoles(roles ...model.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				h.fail(w, errUnauthorized("Authentication required"))
				return
			}
			if !user.HasRole(roles...) {
				h.fail(w, errForbidden("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

// OwnerResolver resolves the owner of the resource a request targets.
type OwnerResolver func(r *http.Request) (int64, error)

// RequireOwnerOrAdmin allows admins through unconditionally; everyone else
// must match the resource owner resolved from the route.
func (h *APIHandler) RequireOwnerOrAdmin(owner OwnerResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok {
			h.fail(w, errUnauthorized("Authentication required"))
			return
		}
		if user.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}

		ownerID, err := owner(r)
		if err != nil {
			h.fail(w, err)
			return
		}
		if ownerID != user.ID {
			h.fail(w, errForbidden("You do not own this resource"))
			return
		}
		next.ServeHTTP(w, r)
	}
}

// trackOwner resolves a track route to the uploader's ID. Soft-deleted
// tracks still resolve so their owner can be checked.
func (h *APIHandler) trackOwner(r *http.Request) (int64, error) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		return 0, apiErr
	}
	track, err := h.trackRepo.FindByID(id, true)
	if err != nil {
		return 0, err
	}
	if track == nil {
		return 0, errNotFound("Track not found")
	}
	return track.UploadedBy, nil
}

// pathUser resolves a user route: the path ID is the owner ID.
func (h *APIHandler) pathUser(r *http.Request) (int64, error) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		return 0, apiErr
	}
	return id, nil
}

// corsMiddleware mirrors the permissive CORS policy of the public API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, X-Request-Id")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an ID echoed in X-Request-Id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts panics into JSON 500s so no request dies with
// a bare connection reset or leaks a stack trace.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic while handling request",
					logger.String("path", r.URL.Path),
					logger.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, errInternal("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
