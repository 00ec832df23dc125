package handlers

import (
	"context"
	"sync"

	"github.com/gorilla/mux"

	"github.com/onnwee/screenshot-api/internal/dispatch"
	"github.com/onnwee/screenshot-api/internal/screenshot"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	result dispatch.Result
	err    error
	got    []screenshot.Request
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req screenshot.Request) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return dispatch.Result{}, f.err
	}
	if err := screenshot.Validate(req); err != nil {
		return dispatch.Result{}, err
	}
	return f.result, nil
}

func (f *fakeDispatcher) calls() []screenshot.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]screenshot.Request(nil), f.got...)
}

// seqResolver returns states in order and then repeats the last one.
type seqResolver struct {
	mu     sync.Mutex
	states []dispatch.Status
	err    error
	n      int
}

func (s *seqResolver) Resolve(ctx context.Context, id string) (dispatch.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return dispatch.Status{}, s.err
	}
	i := min(s.n, len(s.states)-1)
	s.n++
	st := s.states[i]
	st.JobID = id
	return st, nil
}

func statusRouter(h *StatusHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/screenshot/status/{job_id}", h.Get).Methods("GET")
	r.HandleFunc("/screenshot/status/{job_id}/ws", h.Stream).Methods("GET")
	return r
}
