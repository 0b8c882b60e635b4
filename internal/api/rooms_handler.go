package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/schoolmesh/studyrooms/internal/rooms"
)

// RoomsHandler reports the live rooms from coordinator memory: id, whether a
// host is bound, member and pending-request counts. Read-only; room state is
// never mutated through HTTP.
func RoomsHandler(coordinator *rooms.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(coordinator.Rooms()); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("encode rooms listing")
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}
