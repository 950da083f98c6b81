package api

import (
	"net/http"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/coordinator"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// SyncRequest is the body of POST /api/sync. Both fields are optional.
type SyncRequest struct {
	FileName string `json:"file_name,omitempty"`
}

// SyncResponse reports the outcome of a manual sync.
type SyncResponse struct {
	IntentID    string    `json:"intent_id"`
	FileName    string    `json:"file_name"`
	Location    string    `json:"location,omitempty"`
	Hash        string    `json:"hash"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

// IntervalRequest is the body of PUT /api/interval.
type IntervalRequest struct {
	Minutes int `json:"minutes"`
}

// PrefixRequest is the body of PUT /api/prefix. A blank prefix restores the default label.
type PrefixRequest struct {
	Prefix string `json:"prefix"`
}

// RemoteCheckResponse reports remote connectivity.
type RemoteCheckResponse struct {
	Remote    string `json:"remote"`
	Connected bool   `json:"connected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.Success(w, http.StatusOK, s.cfg.Coordinator.Status())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.Error(w, r, err)
			return
		}
	}
	out, err := s.cfg.Coordinator.RequestManualSync(r.Context(), req.FileName)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, toSyncResponse(out))
}

func toSyncResponse(out coordinator.Outcome) SyncResponse {
	return SyncResponse{
		IntentID:    out.IntentID,
		FileName:    out.FileName,
		Location:    out.Location,
		Hash:        string(out.Hash),
		Attempts:    out.Attempts,
		CompletedAt: out.CompletedAt,
	}
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Coordinator.Enable(r.Context()); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, s.cfg.Coordinator.Status())
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Coordinator.Disable(r.Context()); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, s.cfg.Coordinator.Status())
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.Error(w, r, err)
		return
	}
	if err := s.cfg.Coordinator.SetInterval(r.Context(), req.Minutes); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, s.cfg.Coordinator.Status())
}

func (s *Server) handlePrefix(w http.ResponseWriter, r *http.Request) {
	var req PrefixRequest
	if err := decodeJSON(r, &req); err != nil {
		s.Error(w, r, err)
		return
	}
	if err := s.cfg.Coordinator.SetFileNamePrefix(r.Context(), req.Prefix); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, s.cfg.Coordinator.Status())
}

func (s *Server) handleRemoteCheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Remote == nil {
		s.Error(w, r, ferrors.NotConnectedError("no remote configured").Build())
		return
	}
	if err := s.cfg.Remote.Check(r.Context()); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, RemoteCheckResponse{Remote: s.cfg.Remote.Name(), Connected: true})
}
