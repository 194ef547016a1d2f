package server

import (
	"net/http"
	"strconv"

	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/rs/zerolog/log"
)

const defaultPageSize = 50

type usersPage struct {
	Users  []*users.User `json:"users"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// AdminUsersListHandler pages through accounts, oldest first
func (s *Server) AdminUsersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", defaultPageSize)
		if offset < 0 || limit <= 0 || limit > 500 {
			writeJSONError(w, "invalid_request", "offset must be >= 0 and limit between 1 and 500", http.StatusBadRequest)
			return
		}

		list, total, err := s.auth.ListUsers(offset, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list users")
			writeJSONError(w, "server_error", "failed to list users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, usersPage{Users: list, Total: total, Offset: offset, Limit: limit})
	}
}

func (s *Server) AdminApproveUserHandler() http.HandlerFunc {
	return s.userStatusHandler(s.auth.ApproveUser, users.StatusApproved)
}

// AdminRevokeUserHandler blocks the account and ends all of its sessions
func (s *Server) AdminRevokeUserHandler() http.HandlerFunc {
	return s.userStatusHandler(s.auth.RevokeUser, users.StatusRevoked)
}

func (s *Server) userStatusHandler(apply func(userID string) error, status users.AccountStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")
		if err := apply(userID); err != nil {
			if apperrors.Is(err, apperrors.ErrUserNotFound) {
				writeJSONError(w, "not_found", "user not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to update user status")
			writeJSONError(w, "server_error", "failed to update user", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": userID, "status": string(status)})
	}
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
