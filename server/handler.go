package server

import (
	"context"
	"net/http"
	"strconv"

	"wavecast/cache"
	"wavecast/config"
	"wavecast/core/auth"
	"wavecast/model"
	"wavecast/repository"
	"wavecast/storage"

	"github.com/gorilla/mux"
)

// APIHandler handles all API requests.
type APIHandler struct {
	cfg       *config.Config
	userRepo  repository.UserRepository
	trackRepo repository.TrackRepository
	tokens    *auth.TokenService
	uploader  *Uploader
	catalog   *cache.CatalogCache
	objects   *storage.ObjectStore
}

// NewAPIHandler creates a new API handler. catalog and objects may be nil
// (no cache, no object-storage mirror).
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	trackRepo repository.TrackRepository,
	tokens *auth.TokenService,
	uploader *Uploader,
	catalog *cache.CatalogCache,
	objects *storage.ObjectStore,
) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		userRepo:  userRepo,
		trackRepo: trackRepo,
		tokens:    tokens,
		uploader:  uploader,
		catalog:   catalog,
		objects:   objects,
	}
}

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser attaches the authenticated user to the context.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the authenticated user from the request context.
// ok is false for anonymous requests.
func CurrentUser(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok
}

// pathID parses the named route variable as an ID. Malformed identifiers map
// to a validation error, not a 500.
func pathID(r *http.Request, name string) (int64, *APIError) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errValidation("Invalid identifier: " + raw)
	}
	return id, nil
}

// listingParams reads the shared pagination and sort query parameters.
func listingParams(r *http.Request) (page, limit int, sortBy, sortOrder string) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit, q.Get("sortBy"), q.Get("sortOrder")
}
