package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatd/internal/service"
)

func handleDeleteRoom(roomSvc *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		roomID := chi.URLParam(r, "roomID")
		mutual, _ := strconv.ParseBool(r.URL.Query().Get("mutual"))

		if err := roomSvc.DeleteRoom(r.Context(), user.ID, roomID, mutual); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGroupLogs(roomSvc *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		roomID := chi.URLParam(r, "roomID")

		logs, err := roomSvc.GroupLogs(r.Context(), user.ID, roomID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "logs": logs})
	}
}

func handleGroupDetails(roomSvc *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		roomID := chi.URLParam(r, "roomID")

		details, err := roomSvc.GroupDetails(r.Context(), user.ID, roomID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}
