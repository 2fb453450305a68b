package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/stockbook/internal/core"
	"github.com/JonMunkholm/stockbook/internal/tabular"
)

// multipartMemory is how much of an upload is buffered in memory; the
// rest spills to temp files.
const multipartMemory = 8 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": s.service.ActiveSessions(),
		"commits":        s.service.LimiterStatus(),
	})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Profiles())
}

// handleTemplate serves an empty workbook with the profile's columns.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	profile, ok := core.Get(chi.URLParam(r, "profile"))
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownProfile, chi.URLParam(r, "profile")), http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := tabular.WriteTemplate(&buf, profile); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", profile.Key+"-template.xlsx"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Import.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	entries, err := s.service.History(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleStartImport parses an uploaded sheet and opens an import session.
// Multipart fields: file (required), identical (skip|overwrite|pending),
// operator.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	profile, ok := core.Get(chi.URLParam(r, "profile"))
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownProfile, chi.URLParam(r, "profile")), http.StatusNotFound)
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = tabular.ErrFileTooLarge
		} else {
			err = fmt.Errorf("%w: %v", errNoFile, err)
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	identical, err := core.ParseAction(r.FormValue("identical"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if r.FormValue("identical") == "" {
		identical = ""
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	rows, err := tabular.Parse(header.Filename, file, tabular.Options{
		MaxSize: maxSize,
		Headers: profile.SourceColumns(),
	})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	view, err := s.service.Start(r.Context(), core.StartRequest{
		Profile:          profile.Key,
		FileName:         header.Filename,
		Operator:         requestOperator(r),
		Rows:             rows,
		IdenticalDefault: identical,
	})
	if err != nil {
		s.respondView(w, r, view, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyToAll(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.service.ApplyToAll)
}

func (s *Server) handleReviewNext(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.service.ReviewNext)
}

func (s *Server) handleApplyToRemaining(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.service.ApplyToRemaining)
}

func (s *Server) handleDecideIdentical(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.service.DecideIdentical)
}

type decisionRequest struct {
	Action string `json:"action"`
}

// handleDecision reads {"action": "..."} and applies it with decide.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, decide func(string, core.Action) (core.SessionView, error)) {
	var req decisionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadBody, err), http.StatusBadRequest)
		return
	}
	action, err := core.ParseAction(req.Action)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	view, err := decide(chi.URLParam(r, "sessionID"), action)
	if err != nil {
		s.respondView(w, r, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReclassify(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Reclassify(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondView(w, r, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Commit(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondView(w, r, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// respondView writes err, attaching the session snapshot when there is one.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, view core.SessionView, err error) {
	if view.ID == "" {
		respondError(w, r, err, statusFor(err))
		return
	}
	respondSessionError(w, r, err, statusFor(err), &view)
}
