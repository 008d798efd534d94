package httpapi

import (
	"errors"
	"net/http"
	"time"

	"abroadguide.org/internal/audit"
	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	// ExpiresIn is the token lifetime in whole seconds.
	ExpiresIn int64 `json:"expires_in"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type setAffiliationRequest struct {
	Affiliation *string `json:"affiliation"`
}

type identityView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Affiliation string    `json:"affiliation,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewIdentity(id *auth.Identity) identityView {
	return identityView{
		ID:          id.ID,
		Email:       id.Email,
		Role:        id.Role.String(),
		Affiliation: id.Affiliation,
		FirstName:   id.FirstName,
		LastName:    id.LastName,
		FullName:    id.FullName(),
		Enabled:     id.Enabled,
		CreatedAt:   id.CreatedAt,
	}
}

func (a *API) viewSession(s auth.Session) tokenResponse {
	return tokenResponse{
		Token:     s.Token.Token,
		Type:      "Bearer",
		Subject:   s.Subject,
		Role:      s.Role.String(),
		ExpiresAt: s.Token.ExpiresAt,
		ExpiresIn: int64(a.gate.TokenTTL() / time.Second),
	}
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrNotFound):
		return "unknown_subject"
	case errors.Is(err, auth.ErrBadCredentials):
		return "bad_credentials"
	case errors.Is(err, auth.ErrAccountDisabled):
		return "disabled"
	default:
		return "error"
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	session, err := a.gate.Login(r.Context(), req.Email, req.Password)
	outcome := loginOutcome(err)
	obs.RecordLogin(outcome)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			a.fail(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, map[string]any{
			"email":  auth.NormalizeEmail(req.Email),
			"reason": outcome,
		})
		writeUnauthenticated(w, r, "invalid credentials")
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventLoginSucceeded, map[string]any{
		"subject": session.Subject,
		"role":    session.Role.String(),
	})
	writeJSON(w, http.StatusOK, a.viewSession(session))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	var role auth.Role
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		role = parsed
	}

	session, err := a.gate.Register(r.Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		Role:      role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRegistered, map[string]any{
		"subject": session.Subject,
		"role":    session.Role.String(),
	})
	w.Header().Set("Location", "/api/users/"+session.Identity.ID)
	writeJSON(w, http.StatusCreated, a.viewSession(session))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	identity, err := a.gate.Me(r.Context(), ic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	if err := a.gate.ChangePassword(r.Context(), ic, req.CurrentPassword, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordChange, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	identities, err := a.gate.ListIdentities(r.Context(), ic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]identityView, 0, len(identities))
	for _, id := range identities {
		out = append(out, viewIdentity(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ic, _ := auth.IdentityFromContext(r.Context())
	identity, err := a.gate.GetIdentity(r.Context(), ic, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	identity, err := a.gate.SetRole(r.Context(), ic, r.PathValue("id"), role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRoleChanged, map[string]any{
		"target": identity.Email,
		"role":   identity.Role.String(),
	})
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}

func (a *API) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "enabled is required")
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	identity, err := a.gate.SetEnabled(r.Context(), ic, r.PathValue("id"), *req.Enabled)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventEnabledChanged, map[string]any{
		"target":  identity.Email,
		"enabled": identity.Enabled,
	})
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}

func (a *API) handleSetAffiliation(w http.ResponseWriter, r *http.Request) {
	var req setAffiliationRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if req.Affiliation == nil {
		writeError(w, r, http.StatusBadRequest, "affiliation is required")
		return
	}
	ic, _ := auth.IdentityFromContext(r.Context())
	identity, err := a.gate.SetAffiliation(r.Context(), ic, r.PathValue("id"), *req.Affiliation)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAffiliationSet, map[string]any{
		"target":      identity.Email,
		"affiliation": identity.Affiliation,
	})
	writeJSON(w, http.StatusOK, viewIdentity(identity))
}
