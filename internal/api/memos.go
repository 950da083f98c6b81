package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/memobackup/internal/config"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

// Memo is one stored entry.
type Memo struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const maxMemoBytes = 1 << 20

func (s *Server) memoKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		return "", ferrors.ValidationError("memo key must not be empty").Build()
	}
	if strings.HasPrefix(key, config.SettingsPrefix) {
		return "", ferrors.ValidationError("settings keys are managed by the daemon").
			WithContext("key", key).
			Build()
	}
	return key, nil
}

func (s *Server) handleListMemos(w http.ResponseWriter, r *http.Request) {
	keys, err := store.RelevantKeys(r.Context(), s.cfg.Memos, s.cfg.Selector)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	out := make([]Memo, 0, len(keys))
	for _, k := range keys {
		v, err := s.cfg.Memos.Get(r.Context(), k)
		if err != nil {
			s.Error(w, r, err)
			return
		}
		if v != nil {
			out = append(out, Memo{Key: k, Value: string(v)})
		}
	}
	s.Success(w, http.StatusOK, out)
}

func (s *Server) handleGetMemo(w http.ResponseWriter, r *http.Request) {
	key, err := s.memoKey(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	v, err := s.cfg.Memos.Get(r.Context(), key)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if v == nil {
		s.Error(w, r, ferrors.NewError(ferrors.CategoryNotFound, "memo not found").WithContext("key", key).Build())
		return
	}
	s.Success(w, http.StatusOK, Memo{Key: key, Value: string(v)})
}

// handleSetMemo stores the raw request body as the memo value.
func (s *Server) handleSetMemo(w http.ResponseWriter, r *http.Request) {
	key, err := s.memoKey(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMemoBytes+1))
	if err != nil {
		s.Error(w, r, ferrors.WrapError(err, ferrors.CategoryValidation, "failed to read memo body").Build())
		return
	}
	if len(body) > maxMemoBytes {
		s.Error(w, r, ferrors.ValidationError("memo exceeds 1 MiB").WithContext("key", key).Build())
		return
	}
	if err := s.cfg.Memos.Set(r.Context(), key, body); err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, Memo{Key: key, Value: string(body)})
}

func (s *Server) handleRemoveMemo(w http.ResponseWriter, r *http.Request) {
	key, err := s.memoKey(r)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	if err := s.cfg.Memos.Remove(r.Context(), key); err != nil {
		s.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearMemos removes every sync-relevant memo. Settings survive.
func (s *Server) handleClearMemos(w http.ResponseWriter, r *http.Request) {
	keys, err := store.RelevantKeys(r.Context(), s.cfg.Memos, s.cfg.Selector)
	if err != nil {
		s.Error(w, r, err)
		return
	}
	for _, k := range keys {
		if err := s.cfg.Memos.Remove(r.Context(), k); err != nil {
			s.Error(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
