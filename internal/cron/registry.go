package cron

import "context"

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order, keyed by name. Nil jobs and
// later jobs reusing a registered name are ignored.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register reports whether job was added.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	if r.byName == nil {
		r.byName = make(map[string]Job)
	}
	if _, dup := r.byName[job.Name()]; dup {
		return false
	}
	r.byName[job.Name()] = job
	r.jobs = append(r.jobs, job)
	return true
}

// Lookup finds a job by name.
func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
