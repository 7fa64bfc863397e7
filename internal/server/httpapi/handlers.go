package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"telechat/internal/models"
	"telechat/internal/rest"
	"telechat/internal/server/auth"
	"telechat/internal/server/hub"
	"telechat/internal/server/storage"
)

type API struct {
	tokens *auth.TokenService
	store  *storage.BboltStorage
	hub    *hub.Hub
}

func NewAPI(tokens *auth.TokenService, store *storage.BboltStorage, h *hub.Hub) *API {
	return &API{tokens: tokens, store: store, hub: h}
}

// LoginHandler finds or creates a participant by name and role and issues a
// bearer token. This is the dev loop's stand-in for the real auth service.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string      `json:"name"`
		Role models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || (req.Role != models.RoleDoctor && req.Role != models.RolePatient) {
		writeJSON(w, http.StatusBadRequest, rest.Result{Message: "name and role are required"})
		return
	}

	user, err := a.store.FindUser(req.Name, req.Role)
	if err == models.ErrNotFound {
		user, err = a.store.UpsertUser(models.User{Name: req.Name, Role: req.Role})
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, rest.Result{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   a.tokens.Issue(user),
		"user":    user,
	})
}

// CreateChatHandler starts a consultation session between a doctor and a
// patient.
func (a *API) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireUser(w, r); !ok {
		return
	}

	var req struct {
		DoctorID int `json:"doctor_id"`
		UserID   int `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DoctorID == 0 || req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, rest.Result{Message: "doctor_id and user_id are required"})
		return
	}

	session, err := a.store.CreateSession(req.DoctorID, req.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, rest.Result{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rest.Result{Success: true, ID: session.ID})
}

// GetChatHandler hydrates one session with its transcript and artifacts.
func (a *API) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	session, ok := a.sessionOf(w, r, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// EndChatHandler marks a session ended. The chat-ended alert is broadcast by
// the ending client over the live channel, not by this handler.
func (a *API) EndChatHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	session, ok := a.sessionOf(w, r, user)
	if !ok {
		return
	}

	if err := a.store.EndSession(session.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, rest.Result{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rest.Result{Success: true, Message: "chat ended"})
}

// PrescriptionHandler creates (POST) or updates (PATCH) a session's
// prescription. Doctor only.
func (a *API) PrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireDoctor(w, r)
	if !ok {
		return
	}
	session, ok := a.sessionOf(w, r, user)
	if !ok {
		return
	}

	var p models.Prescription
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.store.SetPrescription(session.ID, p); err != nil {
		writeJSON(w, http.StatusInternalServerError, rest.Result{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rest.Result{Success: true})
}

// SickLeaveHandler creates (POST) or updates (PATCH) a session's sick leave
// certificate. Doctor only.
func (a *API) SickLeaveHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireDoctor(w, r)
	if !ok {
		return
	}
	session, ok := a.sessionOf(w, r, user)
	if !ok {
		return
	}

	var f models.SickLeaveForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.store.SetSickLeave(session.ID, f); err != nil {
		writeJSON(w, http.StatusInternalServerError, rest.Result{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rest.Result{Success: true})
}

func (a *API) bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func (a *API) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := a.tokens.Resolve(a.bearerToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.User{}, false
	}
	return user, true
}

func (a *API) requireDoctor(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if user.Role != models.RoleDoctor {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return models.User{}, false
	}
	return user, true
}

// sessionOf loads the {id} session and checks the caller participates in it.
func (a *API) sessionOf(w http.ResponseWriter, r *http.Request, user models.User) (models.Session, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return models.Session{}, false
	}

	session, err := a.store.GetSession(id)
	if err == models.ErrNotFound {
		http.Error(w, "Not found", http.StatusNotFound)
		return models.Session{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return models.Session{}, false
	}
	if user.ID != session.DoctorID && user.ID != session.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return models.Session{}, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
