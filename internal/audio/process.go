// Package audio runs the recorded-call flow: transcribe, extract intent,
// score, merge into the lead, and log the interaction.
package audio

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/merge"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/scorer"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/internal/transcribe"
)

// ErrNotAuthorized is returned when the acting user does not own the lead.
var ErrNotAuthorized = eris.New("audio: not authorized to update this lead")

const summaryRunes = 200

// Upload is one recorded call submitted for a lead.
type Upload struct {
	LeadID       string
	ActingUserID string
	Filename     string
	Audio        []byte
}

// Result is the derived state of a processed upload.
type Result struct {
	Status          string              `json:"status"`
	FilePath        string              `json:"file_path"`
	LeadID          string              `json:"lead_id"`
	Transcript      string              `json:"transcript"`
	ExtractedIntent model.IntentSignals `json:"extracted_intent"`
	PriorityScore   int                 `json:"priority_score"`
	MeetingLink     *string             `json:"meeting_link"`
}

// Processor runs uploads end to end. It is safe for concurrent use.
type Processor struct {
	store       store.Store
	transcriber transcribe.Transcriber
	extractor   extract.Extractor
	scorer      *scorer.Scorer
	merger      *merge.Merger
	recordings  *Recordings
}

// NewProcessor wires a Processor. The transcriber is wrapped so failures
// degrade to an empty transcript.
func NewProcessor(st store.Store, tr transcribe.Transcriber, ex extract.Extractor, sc *scorer.Scorer, mg *merge.Merger, rec *Recordings) *Processor {
	if _, ok := tr.(transcribe.Safe); !ok {
		tr = transcribe.Safe{Inner: tr}
	}
	return &Processor{
		store:       st,
		transcriber: tr,
		extractor:   ex,
		scorer:      sc,
		merger:      mg,
		recordings:  rec,
	}
}

// Process handles one upload. Only ErrInvalidLeadID, ErrNotAuthorized and a
// failure to save the recording are returned; every other failure is logged
// and degrades.
func (p *Processor) Process(ctx context.Context, up Upload) (*Result, error) {
	if !ValidLeadID(up.LeadID) {
		return nil, eris.Wrapf(ErrInvalidLeadID, "audio: lead id %q", up.LeadID)
	}
	log := zap.L().With(zap.String("lead_id", up.LeadID))

	lead := p.lookup(ctx, up.LeadID)
	if lead != nil && lead.OwnerID != "" && lead.OwnerID != up.ActingUserID {
		log.Warn("audio: ownership mismatch",
			zap.String("owner_id", lead.OwnerID),
			zap.String("acting_user_id", up.ActingUserID),
		)
		return nil, ErrNotAuthorized
	}

	path, err := p.recordings.Save(up.LeadID, up.Filename, up.Audio)
	if err != nil {
		return nil, err
	}

	transcript, _ := p.transcriber.Transcribe(ctx, path, up.Audio)

	signals := model.IntentSignals{}
	if strings.TrimSpace(transcript) != "" && p.extractor != nil {
		if got := p.extractor.Extract(ctx, transcript); got != nil {
			signals = got
		}
	}

	score := p.scorer.ScorePriority(signals)

	var link *string
	if lead != nil {
		merged := p.merger.MergeExtractedIntent(lead.Meta, signals, score, lead.Status, lead.ID)
		code, err := p.store.PatchLead(ctx, lead.ID, store.LeadPatch{Meta: merged})
		switch {
		case err != nil:
			log.Warn("audio: metadata update failed", zap.Error(err))
		case !store.IsSuccess(code):
			log.Warn("audio: metadata update rejected", zap.Int("status_code", code))
		}
		if s := merged.String(model.MetaMeetingLink); s != "" {
			link = &s
		}
	} else if p.scorer.NeedsMeeting(score) {
		s := p.merger.Links().ForLead(up.LeadID)
		link = &s
	}

	p.logInteraction(ctx, up.LeadID, path, transcript, score)

	log.Info("audio: processed",
		zap.Int("priority_score", score),
		zap.Int("signals", len(signals)),
		zap.Bool("lead_found", lead != nil),
	)

	return &Result{
		Status:          "uploaded",
		FilePath:        path,
		LeadID:          up.LeadID,
		Transcript:      transcript,
		ExtractedIntent: signals,
		PriorityScore:   score,
		MeetingLink:     link,
	}, nil
}

// lookup returns the lead or nil when it is missing or cannot be read.
func (p *Processor) lookup(ctx context.Context, id string) *model.Lead {
	code, lead, err := store.GetLead(ctx, p.store, id)
	switch {
	case err != nil:
		zap.L().Warn("audio: lead lookup failed", zap.String("lead_id", id), zap.Error(err))
		return nil
	case code == store.StatusNotFound:
		zap.L().Info("audio: lead not found, skipping metadata merge", zap.String("lead_id", id))
		return nil
	case !store.IsSuccess(code):
		zap.L().Warn("audio: lead lookup rejected", zap.String("lead_id", id), zap.Int("status_code", code))
		return nil
	}
	return lead
}

func (p *Processor) logInteraction(ctx context.Context, leadID, path, transcript string, score int) {
	in := model.Interaction{
		LeadID:       leadID,
		Type:         model.InteractionNote,
		Summary:      "Audio Transcribed: " + truncateRunes(transcript, summaryRunes) + "...",
		RecordingURL: path,
		Meta: model.Meta{
			"transcript":            transcript,
			model.MetaPriorityScore: score,
		},
	}
	code, err := p.store.InsertInteraction(ctx, in)
	switch {
	case err != nil:
		zap.L().Warn("audio: interaction log failed", zap.String("lead_id", leadID), zap.Error(err))
	case !store.IsSuccess(code):
		zap.L().Warn("audio: interaction log rejected", zap.String("lead_id", leadID), zap.Int("status_code", code))
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
