package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/clients/github"
	"github.com/aristath/famledger/internal/events"
	"github.com/aristath/famledger/internal/secrets"
)

// verifyTimeout bounds the advisory remote check.
const verifyTimeout = 10 * time.Second

// TokenHandlers manages the stored remote access token
type TokenHandlers struct {
	manager  *secrets.Manager
	resolver *secrets.Resolver
	bus      *events.Bus
	log      zerolog.Logger
}

// NewTokenHandlers creates token handlers
func NewTokenHandlers(manager *secrets.Manager, resolver *secrets.Resolver, bus *events.Bus, log zerolog.Logger) *TokenHandlers {
	return &TokenHandlers{
		manager:  manager,
		resolver: resolver,
		bus:      bus,
		log:      log.With().Str("handler", "token").Logger(),
	}
}

// RegisterRoutes registers token routes
func (h *TokenHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/token", func(r chi.Router) {
		r.Post("/save", h.HandleSave)
		r.Get("/status", h.HandleStatus)
		r.Post("/recover", h.HandleRecover)
		r.Delete("/", h.HandleDelete)
	})
}

// HandleSave handles POST /api/token/save
func (h *TokenHandlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := secrets.ValidateFormat(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The remote check is advisory; only an explicit rejection stops the save
	ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	user, verr := h.manager.Verify(ctx, token)
	cancel()
	if errors.Is(verr, github.ErrUnauthorized) {
		writeError(w, http.StatusBadRequest, "Token was rejected by GitHub")
		return
	}
	if verr != nil {
		h.log.Warn().Err(verr).Msg("Could not verify token, saving anyway")
	}

	if err := h.manager.Save(r.Context(), token); err != nil {
		h.log.Error().Err(err).Msg("Failed to save token")
		writeError(w, http.StatusInternalServerError, "Failed to save token")
		return
	}

	h.bus.Emit(events.TokenChanged, "secrets", &events.TokenChangedData{Action: "saved"})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Token saved",
		"verified": verr == nil,
		"user":     user,
	})
}

// HandleStatus handles GET /api/token/status. ?verify=true also checks the
// token against the remote.
func (h *TokenHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	stored := h.manager.Status(r.Context())
	cred, ok := h.resolver.Resolve(r.Context())

	response := map[string]interface{}{
		"success":  true,
		"message":  "OK",
		"hasToken": ok,
		"source":   cred.Source,
		"stored":   stored,
	}

	if ok && r.URL.Query().Get("verify") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		user, err := h.manager.Verify(ctx, cred.Token)
		cancel()
		response["valid"] = err == nil
		if err == nil {
			response["user"] = user
		} else {
			response["verifyError"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleDelete handles DELETE /api/token
func (h *TokenHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to delete token")
		writeError(w, http.StatusInternalServerError, "Failed to delete token")
		return
	}

	h.bus.Emit(events.TokenChanged, "secrets", &events.TokenChangedData{Action: "deleted"})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Token deleted",
	})
}

// HandleRecover handles POST /api/token/recover
func (h *TokenHandlers) HandleRecover(w http.ResponseWriter, r *http.Request) {
	from, err := h.manager.Recover(r.Context())
	if errors.Is(err, secrets.ErrSecretUnavailable) {
		writeError(w, http.StatusNotFound, "No recoverable token found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to recover token")
		writeError(w, http.StatusInternalServerError, "Failed to recover token")
		return
	}

	h.bus.Emit(events.TokenChanged, "secrets", &events.TokenChangedData{Action: "recovered"})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "Token recovered",
		"recoveredFrom": from,
	})
}
