package testplan

import "context"

// Repository is the abstract persistence contract for test plans. Spec §1
// treats relational persistence of plans/results as an external
// collaborator; the core only requires this interface.
//
// Concrete adapters (SQL, file-based, in-memory for tests) live outside this
// package, following the teacher's dependency-inversion convention: the
// domain package declares what it needs, infrastructure packages satisfy it.
type Repository interface {
	// GetPlan loads a plan by its (project, station, name) reference.
	GetPlan(ctx context.Context, project, station, name string) (*Plan, error)
}
