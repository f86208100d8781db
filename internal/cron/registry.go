// Package cron runs the one-shot channel sync jobs under a per-job lock and
// records each run in the sync run log.
package cron

import (
	"context"
	"sort"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
)

// Job is one channel sync batch. Item outcomes go into the summary; only a
// run-level failure is returned as an error.
type Job interface {
	Name() string
	Run(ctx context.Context) (batch.Summary, error)
}

// Registry tracks registered jobs.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{byName: make(map[string]Job)}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry. A later job with the same name replaces the earlier one.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.byName == nil {
		r.byName = make(map[string]Job)
	}
	if _, exists := r.byName[job.Name()]; exists {
		for i, existing := range r.jobs {
			if existing.Name() == job.Name() {
				r.jobs[i] = job
			}
		}
	} else {
		r.jobs = append(r.jobs, job)
	}
	r.byName[job.Name()] = job
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists the registered job names alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
