// Package jobs owns the list and detail view of generation jobs.
package jobs

import (
	"context"
	"sync"

	"github.com/manimforge/go-manim-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	generatePath = "/api/generate-manim/"
	scriptsPath  = "/api/scripts/"
)

// State is a snapshot of the job store. Jobs holds the most recently
// fetched list, newest-first as returned by the backend.
type State struct {
	Jobs      []Job
	Current   *Job
	IsLoading bool
	Error     string
}

// Store owns the generation-job list and the selected job.
type Store struct {
	api *transport.Client
	log zerolog.Logger

	lock  sync.Mutex
	state State
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates an empty job store.
func NewStore(api *transport.Client, options ...Option) (*Store, error) {
	if api == nil {
		return nil, errors.New("[jobs.NewStore] transport client is required")
	}
	s := &Store{
		api: api,
		log: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// State returns a snapshot of the current store state.
func (s *Store) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := s.state
	st.Jobs = append([]Job(nil), s.state.Jobs...)
	if st.Current != nil {
		current := *st.Current
		st.Current = &current
	}
	return st
}

// FetchJobs replaces the full job list with the backend's. There is no
// incremental merge: the last call to complete wins. A failed fetch
// records an error and leaves the existing list intact.
func (s *Store) FetchJobs(ctx context.Context) {
	s.begin()

	var fetched []Job
	if err := s.api.Get(ctx, scriptsPath, &fetched); err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Failed to fetch jobs")
		})
		return
	}

	s.update(func(st *State) {
		st.Jobs = fetched
		st.IsLoading = false
	})
}

// FetchJob replaces the selected job without touching the list.
func (s *Store) FetchJob(ctx context.Context, id string) {
	s.begin()

	var job Job
	if err := s.api.Get(ctx, scriptsPath+id+"/", &job); err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Failed to fetch job")
		})
		return
	}

	s.update(func(st *State) {
		st.Current = &job
		st.IsLoading = false
	})
}

// Generate submits a creation request. On success the new job is
// prepended to the list, selected as current, and returned so the
// caller can drive selection. On failure the error is recorded and nil
// is returned: no job was created and no state changed.
//
// A Generate immediately followed by FetchJobs may duplicate or
// reorder the new entry until the backend has indexed it; that
// eventual-consistency gap is accepted, not masked.
func (s *Store) Generate(ctx context.Context, prompt string, provider Provider, execute bool) *Job {
	s.begin()

	var created Job
	err := s.api.Post(ctx, generatePath, generateRequest{
		Prompt:   prompt,
		Provider: provider,
		Execute:  execute,
	}, &created)
	if err != nil {
		s.update(func(st *State) {
			st.IsLoading = false
			st.Error = transport.ErrorMessage(err, "Failed to generate animation")
		})
		return nil
	}

	s.update(func(st *State) {
		st.Jobs = append([]Job{created}, st.Jobs...)
		st.Current = &created
		st.IsLoading = false
	})
	s.log.Info().Str("job_id", created.ID).Str("provider", string(provider)).Msg("generation job created")

	result := created
	return &result
}

// ClearCurrent empties the selection without touching the list, for
// callers starting a fresh submission context.
func (s *Store) ClearCurrent() {
	s.update(func(st *State) {
		st.Current = nil
	})
}

func (s *Store) begin() {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})
}

func (s *Store) update(fn func(*State)) {
	s.lock.Lock()
	fn(&s.state)
	s.lock.Unlock()
}
