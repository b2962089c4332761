// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// CreateRoomRequest is the body of POST /rooms. Every field is optional.
type CreateRoomRequest struct {
	Name       string               `json:"name"`
	Visibility models.Visibility    `json:"visibility"`
	Settings   models.SettingsPatch `json:"settings"`
}

// CreateRoomResponse carries the host token the creator presents on join.
type CreateRoomResponse struct {
	Room      room.Summary `json:"room"`
	HostToken string       `json:"hostToken"`
	JoinURL   string       `json:"joinUrl"`
}

// createRoom handles POST /rooms.
func (s *APIServer) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateRoomRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &room.Error{Code: codeBadRequest, Message: "invalid request body"})
			return
		}
	}

	settings := req.Settings.Apply(models.DefaultSettings())
	rm, err := s.Controller.CreateRoom(req.Name, req.Visibility, settings)
	if err != nil {
		status := http.StatusInternalServerError
		if room.Code(err) == room.ErrInvalidSettings.Code {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	token, err := s.Tokens.IssueHostToken(rm.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("room", rm.ID).Error("failed to issue host token")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	summary := rm.Summary()
	writeJSON(w, http.StatusCreated, CreateRoomResponse{
		Room:      summary,
		HostToken: token,
		JoinURL:   joinURL(s.PublicURL, r, summary.Code),
	})
}

// listRooms handles GET /rooms, returning public rooms only.
func (s *APIServer) listRooms(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	out := make([]room.Summary, 0)
	for _, rm := range s.Controller.Store().List() {
		sum := rm.Summary()
		if sum.Visibility != models.VisibilityPublic {
			continue
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *APIServer) lookup(w http.ResponseWriter, ps httprouter.Params) (*room.Room, bool) {
	code := strings.ToUpper(strings.TrimSpace(ps.ByName("code")))
	rm, ok := s.Controller.Store().GetByCode(code)
	if !ok {
		writeError(w, http.StatusNotFound, room.ErrRoomNotFound)
		return nil, false
	}
	return rm, true
}

// getRoom handles GET /rooms/:code. Private rooms are found by code too.
func (s *APIServer) getRoom(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	rm, ok := s.lookup(w, ps)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm.Summary())
}

// roomQR handles GET /rooms/:code/qr with a PNG of the join link.
func (s *APIServer) roomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm, ok := s.lookup(w, ps)
	if !ok {
		return
	}
	png, err := qrcode.Encode(joinURL(s.PublicURL, r, rm.Code), qrcode.Medium, qrSize)
	if err != nil {
		s.Logger.WithError(err).Warn("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
