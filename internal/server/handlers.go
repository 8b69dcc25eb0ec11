package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Time: time.Now().UTC().Format(time.RFC3339)}
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.accounts.Register(r.Context(), req.TelegramID, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.accounts.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: st, Text: st.Text()})
}

func (s *Server) getTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tmpl, err := s.accounts.Template(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TemplateResponse{Template: tmpl, IsDefault: tmpl == ""})
}

func (s *Server) setTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tmpl, err := s.accounts.SetTemplate(r.Context(), id, req.Example)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TemplateResponse{Template: tmpl})
}

func (s *Server) resetTemplateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.ResetTemplate(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) grantProHandler(w http.ResponseWriter, r *http.Request) {
	adminID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Admin-ID")), 10, 64)
	if err != nil || !s.accounts.IsAdmin(adminID) {
		s.writeError(w, r, common.NewAppError("NOT_ADMIN", "admin only", common.ErrUnauthorized))
		return
	}
	id, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req GrantProRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expiry, err := s.accounts.GrantPro(r.Context(), id, req.Days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("admin.pro.granted", "admin_id", adminID, "tg_id", id, "days", req.Days)
	s.writeJSON(w, http.StatusOK, GrantProResponse{TelegramID: id, ExpiryDate: expiry})
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, common.NewAppError("INVALID_USER", "user id must be a non-zero integer", common.ErrInvalidInput)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.NewAppError("INVALID_JSON", err.Error(), common.ErrInvalidInput)
	}
	return nil
}
