// internal/server/handlers/respond.go

package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/domain/position"
)

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}

	if err != nil && code >= 500 {
		log.Printf("HTTP %d: %s: %v", code, message, err)
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}

// sessionFromRequest builds the caller's session from request headers.
// Authentication happens upstream; the gateway injects the identity
// headers after verifying the token.
func sessionFromRequest(r *http.Request, moderators *identity.ModeratorList) identity.Session {
	userID := r.Header.Get("X-User-ID")
	name := r.Header.Get("X-User-Name")
	if name == "" {
		name = "Anonymous"
	}

	return identity.Session{
		UserID:      userID,
		DisplayName: name,
		Moderator:   userID != "" && moderators.IsModerator(userID),
	}
}

// fixFromBody builds a position fix from request body fields. Zero
// coordinates without an explicit status are treated as unavailable; a
// real fix at exactly (0, 0) is open ocean.
func fixFromBody(lat, lng float64, status string) position.Fix {
	fix := position.Fix{At: time.Now()}

	switch status {
	case "denied":
		fix.Status = position.StatusPermissionDenied
		return fix
	case "timeout":
		fix.Status = position.StatusTimeout
		return fix
	case "unavailable":
		fix.Status = position.StatusUnavailable
		return fix
	}

	if status == "" && lat == 0 && lng == 0 {
		fix.Status = position.StatusUnavailable
		return fix
	}

	fix.Status = position.StatusOK
	fix.Position = geo.Position{Latitude: lat, Longitude: lng}
	return fix
}

// fixFromQuery parses a position fix out of query parameters. Absent
// coordinates yield an unavailable fix; an explicit position_status of
// denied or timeout is honored so clients can report permission failures.
func fixFromQuery(r *http.Request) position.Fix {
	fix := position.Fix{At: time.Now()}

	switch r.URL.Query().Get("position_status") {
	case "denied":
		fix.Status = position.StatusPermissionDenied
		return fix
	case "timeout":
		fix.Status = position.StatusTimeout
		return fix
	}

	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr == "" || lngStr == "" {
		fix.Status = position.StatusUnavailable
		return fix
	}

	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil {
		fix.Status = position.StatusUnavailable
		return fix
	}

	fix.Status = position.StatusOK
	fix.Position = geo.Position{Latitude: lat, Longitude: lng}

	if accStr := r.URL.Query().Get("accuracy"); accStr != "" {
		if acc, err := strconv.ParseFloat(accStr, 64); err == nil {
			fix.Position.Accuracy = acc
		}
	}

	return fix
}
