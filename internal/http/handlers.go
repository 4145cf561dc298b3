package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/taxi-dispatch/internal/models"
	"github.com/example/taxi-dispatch/internal/rides"
)

type registerRequest struct {
	Phone    string      `json:"phone"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	Password string      `json:"password"`
}

// handleRegister creates a participant and issues a bearer token.
// Password hashing is an external identity service's concern; the hash
// field is carried opaquely.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Phone == "" || in.Name == "" {
		http.Error(w, "phone and name are required", http.StatusBadRequest)
		return
	}
	if in.Role != models.RoleRider && in.Role != models.RoleDriver {
		http.Error(w, "role must be rider or driver", http.StatusBadRequest)
		return
	}
	u := &models.User{
		ID:           newID(),
		Phone:        in.Phone,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: in.Password,
		Activation:   models.ActivationInactive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Store.CreateUser(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}
	token := s.Tokens.Issue(u.ID)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         u,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, u)
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	var in locationRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rides.UpdateLocation(r.Context(), u, models.Coord{Lat: in.Lat, Lon: in.Lon}); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	out, err := s.Rides.Nearby(r.Context(), models.Coord{Lat: lat, Lon: lon})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	var in rides.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Rides.Submit(r.Context(), u, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"ride_id": ride.ID, "status": ride.Status})
}

func (s *Server) handleRideAccept(w http.ResponseWriter, r *http.Request) {
	s.rideAction(w, r, s.Rides.Accept)
}

func (s *Server) handleRideStart(w http.ResponseWriter, r *http.Request) {
	s.rideAction(w, r, s.Rides.Start)
}

func (s *Server) handleRideComplete(w http.ResponseWriter, r *http.Request) {
	s.rideAction(w, r, s.Rides.Complete)
}

func (s *Server) handleRideCancel(w http.ResponseWriter, r *http.Request) {
	s.rideAction(w, r, s.Rides.Cancel)
}

func (s *Server) rideAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, u *models.User, rideID string) error) {
	u := userFromContext(r.Context())
	rideID := mux.Vars(r)["ride_id"]
	if err := action(r.Context(), u, rideID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"ride_id": rideID})
}

func (s *Server) handleMyRides(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	out, err := s.Rides.MyRides(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if u.Role != models.RoleDriver {
		s.writeError(w, r, models.ErrForbidden)
		return
	}
	var in redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Codes.Redeem(r.Context(), in.Code, u.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"code": in.Code, "status": "redeemed"})
}

func (s *Server) handleCodeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Codes.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type allocateRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var in allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Count <= 0 {
		http.Error(w, "count must be > 0", http.StatusBadRequest)
		return
	}
	codes, err := s.Codes.Allocate(r.Context(), in.Count)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Fewer codes than requested means the range is exhausted; that is
	// a capacity condition, not an error.
	s.writeJSON(w, http.StatusCreated, map[string]any{"codes": codes, "issued": len(codes)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrCodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyTaken), errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrCodeExpired):
		status = http.StatusGone
	case errors.Is(err, models.ErrPhoneTaken):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
