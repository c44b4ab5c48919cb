package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/unrolled/render"
)

// InstantInfo is the JSON form of an instant.
type InstantInfo struct {
	Timestamp      string `json:"timestamp"`
	Action         string `json:"action"`
	State          string `json:"state"`
	CompletionTime string `json:"completion_time,omitempty"`
}

func newInstantInfo(inst timeline.Instant) InstantInfo {
	return InstantInfo{
		Timestamp:      inst.Timestamp,
		Action:         string(inst.Action),
		State:          inst.State.String(),
		CompletionTime: inst.CompletionTime,
	}
}

func newInstantInfos(instants []timeline.Instant) []InstantInfo {
	infos := make([]InstantInfo, 0, len(instants))
	for _, inst := range instants {
		infos = append(infos, newInstantInfo(inst))
	}
	return infos
}

type timelineHandler struct {
	at *timeline.ActiveTimeline
	rd *render.Render
}

func newTimelineHandler(at *timeline.ActiveTimeline, rd *render.Render) *timelineHandler {
	return &timelineHandler{
		at: at,
		rd: rd,
	}
}

// List returns every operation. The optional "state" query parameter keeps only "pending" or "completed" ones.
func (h *timelineHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.at.Reload()
	if err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch r.URL.Query().Get("state") {
	case "":
	case "pending":
		snap = snap.FilterPending()
	case "completed":
		snap = snap.FilterCompleted()
	default:
		h.rd.JSON(w, http.StatusBadRequest, "state must be pending or completed")
		return
	}
	h.rd.JSON(w, http.StatusOK, newInstantInfos(snap.Instants()))
}

// Pending returns the identities a writer starting now would record as pending.
func (h *timelineHandler) Pending(w http.ResponseWriter, r *http.Request) {
	snap, err := h.at.Reload()
	if err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	ids := []string{}
	for it := snap.Iterator(timeline.Instant.IsPending); it.Valid(); it.Next() {
		ids = append(ids, it.Item().ID().String())
	}
	h.rd.JSON(w, http.StatusOK, ids)
}

func (h *timelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, ok := lookupInstant(h.at, h.rd, w, r)
	if !ok {
		return
	}
	h.rd.JSON(w, http.StatusOK, newInstantInfo(inst))
}

// lookupInstant reloads the timeline and finds the instant named by the route. It writes the error response itself.
func lookupInstant(at *timeline.ActiveTimeline, rd *render.Render, w http.ResponseWriter, r *http.Request) (timeline.Instant, bool) {
	vars := mux.Vars(r)
	action, err := timeline.ParseAction(vars["action"])
	if err != nil {
		rd.JSON(w, http.StatusBadRequest, err.Error())
		return timeline.Instant{}, false
	}
	snap, err := at.Reload()
	if err != nil {
		rd.JSON(w, http.StatusInternalServerError, err.Error())
		return timeline.Instant{}, false
	}
	inst, ok := snap.Get(timeline.ID{Timestamp: vars["ts"], Action: action})
	if !ok {
		rd.JSON(w, http.StatusNotFound, "instant not found")
		return timeline.Instant{}, false
	}
	return inst, true
}
