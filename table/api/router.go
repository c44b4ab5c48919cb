package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap-incubator/tinytable/table/transaction"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
)

// APIPrefix is the path every route is mounted under.
const APIPrefix = "/tinytable"

// NewHandler serves a read-only view of the table's timeline and the conflict checks its writers would run.
func NewHandler(at *timeline.ActiveTimeline, strategy transaction.ConflictResolutionStrategy) http.Handler {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter().PathPrefix(APIPrefix).Subrouter()

	timelineHandler := newTimelineHandler(at, rd)
	router.HandleFunc("/api/v1/timeline", timelineHandler.List).Methods("GET")
	router.HandleFunc("/api/v1/timeline/pending", timelineHandler.Pending).Methods("GET")
	router.HandleFunc("/api/v1/instants/{ts}/{action}", timelineHandler.Get).Methods("GET")

	conflictHandler := newConflictHandler(at, strategy, rd)
	router.HandleFunc("/api/v1/instants/{ts}/{action}/conflicts", conflictHandler.Get).Methods("GET")

	router.Handle("/metrics", promhttp.Handler())

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}
