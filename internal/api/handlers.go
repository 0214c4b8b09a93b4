package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/audio"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/stats"
	"github.com/sells-group/lead-engine/internal/store"
)

const healthTimeout = 5 * time.Second

func (h *handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"message": "Lead Management API is running",
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		zap.L().Warn("api: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"db":      "disconnected",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "connected"})
}

type syncResponse struct {
	Status            string      `json:"status"`
	NewRecords        int         `json:"new_records"`
	IgnoredDuplicates int         `json:"ignored_duplicates"`
	Unconfirmed       int         `json:"unconfirmed"`
	Accepted          []model.Ref `json:"accepted"`
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	var batch []model.RawLead
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of leads")
		return
	}

	res := h.Reconciler.ReconcileBatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, syncResponse{
		Status:            "success",
		NewRecords:        len(res.Accepted),
		IgnoredDuplicates: res.Rejected,
		Unconfirmed:       res.Unconfirmed,
		Accepted:          res.Accepted,
	})
}

func (h *handler) processAudio(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.Upload.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "recording exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with lead_id and file")
		return
	}

	leadID := strings.TrimSpace(r.FormValue("lead_id"))
	if leadID == "" {
		writeError(w, http.StatusBadRequest, "lead_id is required")
		return
	}
	if !audio.ValidLeadID(leadID) {
		writeError(w, http.StatusBadRequest, "lead_id is invalid")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	userID := r.Header.Get(UserHeader)
	if userID == "" {
		userID = h.Server.DefaultUserID
	}
	up := audio.Upload{LeadID: leadID, ActingUserID: userID, Filename: hdr.Filename, Audio: data}

	// The request context only bounds the wait for a slot. Once started,
	// processing runs to completion even if the client goes away.
	work := context.WithoutCancel(r.Context())
	var res *audio.Result
	run := func(context.Context) error {
		var err error
		res, err = h.Audio.Process(work, up)
		return err
	}
	if h.Pool != nil {
		err = h.Pool.Do(r.Context(), run)
	} else {
		err = run(r.Context())
	}

	switch {
	case eris.Is(err, audio.ErrInvalidLeadID):
		writeError(w, http.StatusBadRequest, "lead_id is invalid")
	case eris.Is(err, audio.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "Not authorized to update this lead")
	case err != nil:
		zap.L().Error("api: audio processing failed", zap.String("lead_id", leadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audio processing failed")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	d, err := h.Stats.Dashboard(r.Context(), h.Now())
	if err != nil {
		zap.L().Error("api: dashboard failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) overdue(w http.ResponseWriter, r *http.Request) {
	leads, err := h.Stats.Overdue(r.Context(), h.Now())
	if err != nil {
		zap.L().Error("api: overdue query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "overdue leads unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.Display.Views(leads))
}

func (h *handler) conferenceROI(w http.ResponseWriter, r *http.Request) {
	roi, err := h.Stats.ConferenceROI(r.Context(), chi.URLParam(r, "id"))
	switch {
	case eris.Is(err, stats.ErrConferenceNotFound):
		writeError(w, http.StatusNotFound, "Conference not found or cost not set")
	case err != nil:
		zap.L().Error("api: conference roi failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "roi unavailable")
	default:
		writeJSON(w, http.StatusOK, roi)
	}
}

// allLeads reads every lead, newest first, and writes an error response on
// failure.
func (h *handler) allLeads(w http.ResponseWriter, r *http.Request) ([]model.Lead, bool) {
	code, leads, err := h.Store.GetLeads(r.Context(), store.LeadQuery{NewestFirst: true})
	if err != nil {
		zap.L().Error("api: lead read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leads unavailable")
		return nil, false
	}
	if !store.IsSuccess(code) {
		zap.L().Warn("api: lead read rejected", zap.Int("status_code", code))
		writeError(w, http.StatusBadGateway, "store rejected lead read")
		return nil, false
	}
	return leads, true
}

func (h *handler) pipeline(w http.ResponseWriter, r *http.Request) {
	leads, ok := h.allLeads(w, r)
	if !ok {
		return
	}
	board := h.Classifier.Classify(leads)
	if over := board.OverflowStatuses(); len(over) > 0 {
		names := make([]string, len(over))
		for i, s := range over {
			names[i] = string(s)
		}
		w.Header().Set(OverflowHeader, strings.Join(names, ","))
	}
	writeJSON(w, http.StatusOK, h.Display.Board(board))
}

func (h *handler) leads(w http.ResponseWriter, r *http.Request) {
	leads, ok := h.allLeads(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Display.Views(leads))
}
