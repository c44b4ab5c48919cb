package api

import (
	"net/http"

	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap-incubator/tinytable/table/transaction"
	"github.com/unrolled/render"
)

// CandidateReport is the outcome of checking an instant against one candidate.
type CandidateReport struct {
	Instant    InstantInfo `json:"instant"`
	FileGroups []string    `json:"file_groups"`
	Conflict   string      `json:"conflict,omitempty"`
}

// ConflictReport lists the candidates of an instant and which of them it conflicts with.
type ConflictReport struct {
	Instant    InstantInfo       `json:"instant"`
	Candidates []CandidateReport `json:"candidates"`
}

type conflictHandler struct {
	at       *timeline.ActiveTimeline
	strategy transaction.ConflictResolutionStrategy
	rd       *render.Render
}

func newConflictHandler(at *timeline.ActiveTimeline, strategy transaction.ConflictResolutionStrategy, rd *render.Render) *conflictHandler {
	return &conflictHandler{
		at:       at,
		strategy: strategy,
		rd:       rd,
	}
}

func (h *conflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, ok := lookupInstant(h.at, h.rd, w, r)
	if !ok {
		return
	}
	this, err := transaction.NewConcurrentOperation(h.at, inst)
	if err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	it, err := h.strategy.CandidateInstants(h.at, inst, nil)
	if err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	report := ConflictReport{Instant: newInstantInfo(inst), Candidates: []CandidateReport{}}
	for ; it.Valid(); it.Next() {
		that, err := transaction.NewConcurrentOperation(h.at, it.Item())
		if err != nil {
			h.rd.JSON(w, http.StatusInternalServerError, err.Error())
			return
		}
		c := CandidateReport{Instant: newInstantInfo(it.Item()), FileGroups: []string{}}
		for _, id := range this.MutatedFileGroups().Intersection(that.MutatedFileGroups()).Sorted() {
			c.FileGroups = append(c.FileGroups, id.String())
		}
		if err := h.strategy.ResolveConflict(this, that); err != nil {
			c.Conflict = err.Error()
		}
		report.Candidates = append(report.Candidates, c)
	}
	h.rd.JSON(w, http.StatusOK, report)
}
