package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatd/internal/domain"
	"chatd/internal/service"
)

// errStatus maps service rejections onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrBlocked):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders the error as JSON. Unmapped errors are masked as
// ErrInternal so storage details never reach the client.
func writeErr(w http.ResponseWriter, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		err = domain.ErrInternal
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func handleListUsers(users domain.UserRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleUpdateProfile(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req service.UpdateProfileInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		updated, err := userSvc.UpdateProfile(r.Context(), user.ID, req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

type avatarRequest struct {
	Avatar string `json:"avatar" validate:"required"`
}

func handleAddAvatar(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req avatarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Avatar == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "avatar is required"})
			return
		}
		updated, err := userSvc.AddAvatar(r.Context(), user.ID, req.Avatar)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleSelectAvatar(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req avatarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Avatar == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "avatar is required"})
			return
		}
		updated, err := userSvc.SelectAvatar(r.Context(), user.ID, req.Avatar)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteAvatar(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		var req avatarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Avatar == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "avatar is required"})
			return
		}
		updated, err := userSvc.DeleteAvatar(r.Context(), user.ID, req.Avatar)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleBlockUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		targetID := chi.URLParam(r, "userID")
		if err := userSvc.Block(r.Context(), user.ID, targetID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUnblockUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		targetID := chi.URLParam(r, "userID")
		if err := userSvc.Unblock(r.Context(), user.ID, targetID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListBlocked(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		ids, err := userSvc.BlockedUsers(r.Context(), user.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"blocked_users": ids})
	}
}
