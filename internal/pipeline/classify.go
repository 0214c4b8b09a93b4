// Package pipeline groups leads into the status board shown to sales.
package pipeline

import (
	"bytes"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/merge"
	"github.com/sells-group/lead-engine/internal/model"
)

// Bucket is a pipeline display column.
type Bucket string

const (
	BucketNew       Bucket = "New"
	BucketContacted Bucket = "Contacted"
	BucketFollowUp  Bucket = "Follow-up"
	BucketQualified Bucket = "Qualified"
	BucketMeeting   Bucket = "Meeting"
	BucketWon       Bucket = "Won"
	BucketLost      Bucket = "Lost"
	BucketOther     Bucket = "Other"
)

// Buckets is the fixed column order. BucketOther is appended only when a
// lead's status matches none of these.
var Buckets = []Bucket{
	BucketNew,
	BucketContacted,
	BucketFollowUp,
	BucketQualified,
	BucketMeeting,
	BucketWon,
	BucketLost,
}

func bucketFor(status model.Status) (Bucket, bool) {
	for _, b := range Buckets {
		if string(b) == string(status) {
			return b, true
		}
	}
	return BucketOther, false
}

// Board is an ordered set of buckets. Leads keep their input order within
// each bucket.
type Board struct {
	order    []Bucket
	leads    map[Bucket][]model.Lead
	overflow []model.Status
}

func newBoard() *Board {
	b := &Board{
		order: append([]Bucket(nil), Buckets...),
		leads: make(map[Bucket][]model.Lead, len(Buckets)+1),
	}
	for _, bk := range Buckets {
		b.leads[bk] = []model.Lead{}
	}
	return b
}

func (b *Board) add(bucket Bucket, lead model.Lead) {
	if _, ok := b.leads[bucket]; !ok {
		b.order = append(b.order, bucket)
	}
	b.leads[bucket] = append(b.leads[bucket], lead)
}

func (b *Board) noteOverflow(s model.Status) {
	for _, seen := range b.overflow {
		if seen == s {
			return
		}
	}
	b.overflow = append(b.overflow, s)
}

// Buckets returns the board's columns in display order.
func (b *Board) Buckets() []Bucket {
	return append([]Bucket(nil), b.order...)
}

// Leads returns the leads in bucket, or nil for an absent bucket.
func (b *Board) Leads(bucket Bucket) []model.Lead {
	return b.leads[bucket]
}

// Has reports whether the board contains bucket.
func (b *Board) Has(bucket Bucket) bool {
	_, ok := b.leads[bucket]
	return ok
}

// OverflowStatuses lists, in first-seen order, the statuses that landed in
// BucketOther. Persisted statuses such as Met, Engaged, and Outcome have no
// column of their own and show up here.
func (b *Board) OverflowStatuses() []model.Status {
	return append([]model.Status(nil), b.overflow...)
}

// Total returns the number of leads on the board.
func (b *Board) Total() int {
	n := 0
	for _, l := range b.leads {
		n += len(l)
	}
	return n
}

// MarshalJSON encodes the board as an object whose keys follow display order.
func (b *Board) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, bk := range b.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(bk))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(b.leads[bk])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Classifier builds boards. It is read-only and safe for concurrent use.
type Classifier struct {
	merger *merge.Merger
}

// NewClassifier creates a Classifier that uses merger's hot and meeting rules.
func NewClassifier(merger *merge.Merger) *Classifier {
	return &Classifier{merger: merger}
}

// Classify buckets leads by status. Leads in a named column that are in
// Meeting, or have a priority score above the meeting threshold, get a
// display-only MeetingLink: the stored one when present, otherwise one
// derived from the lead's name. Leads in Other never get one. The input
// slice and its metadata are not modified.
func (c *Classifier) Classify(leads []model.Lead) *Board {
	board := newBoard()

	for _, l := range leads {
		lead := l
		bucket, ok := bucketFor(lead.Status)
		if !ok {
			board.noteOverflow(lead.Status)
			board.add(bucket, lead)
			continue
		}
		if c.merger.WantsMeeting(lead.PriorityScore(), lead.Status) {
			lead.MeetingLink = lead.Meta.String(model.MetaMeetingLink)
			if lead.MeetingLink == "" {
				lead.MeetingLink = c.merger.Links().ForName(lead.ID, lead.Name)
			}
		}
		board.add(bucket, lead)
	}

	if len(board.overflow) > 0 {
		statuses := make([]string, len(board.overflow))
		for i, s := range board.overflow {
			statuses[i] = string(s)
		}
		zap.L().Warn("pipeline: statuses without a bucket",
			zap.Strings("statuses", statuses),
			zap.Int("leads", len(board.leads[BucketOther])),
		)
	}

	return board
}
