package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/scheduler"
	"github.com/asoos/domain-sync/pkg/version"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type handler struct {
	db    db.Database
	sched *scheduler.Scheduler
}

func newHandler(database db.Database, sched *scheduler.Scheduler) *handler {
	return &handler{
		db:    database,
		sched: sched,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, version.Get())
}

func (h *handler) listDomains(w http.ResponseWriter, r *http.Request) {
	states, err := h.db.ListStates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeSuccess(w, states)
}

func (h *handler) getDomain(w http.ResponseWriter, r *http.Request) {
	fqdn := mux.Vars(r)["fqdn"]

	state, err := h.db.GetState(fqdn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if state.ID == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no status recorded for %v", fqdn))
		return
	}

	writeSuccess(w, state)
}

// runNow triggers a job outside its cadence. 202 when accepted, 409
// when a run is already in flight and the trigger coalesces.
func (h *handler) runNow(job string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, j := range h.sched.Jobs() {
			if j.Name() != job {
				continue
			}
			if j.State() == scheduler.StateRunning {
				writeError(w, http.StatusConflict, fmt.Errorf("%v run already in progress", job))
				return
			}
			// detach from the request context: the run outlives the
			// 202 response and is bounded by the job's own timeout
			go h.sched.RunNow(context.Background(), job)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"job": job, "status": "triggered"})
			return
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown job %v", job))
	}
}

type errorResponse struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"msg,omitempty"`
}

func writeError(w http.ResponseWriter, httpStatus int, err error) {
	logrus.Errorf("got a response error: %v", err)
	res, _ := json.Marshal(errorResponse{
		Status:  httpStatus,
		Message: err.Error(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	res, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}
