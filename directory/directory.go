/*
Package directory holds the plain records the engine references but does
not own: employees and project tasks.

PURPOSE:
  Employee/team and task/project administration live outside the capacity
  core. The engine only needs to answer "does this employee exist and is
  it active?" and "does this task exist and is it active?" before placing
  work on the grid. This package defines those records, the lookup
  interface consumed by the scheduler, and the deletion rules that tie the
  two worlds together: a task delete cascades to its assignments, while an
  employee with active assignments cannot be deleted at all.
*/
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORDS
// =============================================================================

// Employee is an identity reference. An employee belongs to exactly one
// team at a time; team membership itself is managed elsewhere.
type Employee struct {
	ID       string
	Name     string
	TeamID   string
	IsActive bool
}

// Task is a unit of project work that can be placed on the grid.
type Task struct {
	ID             string
	Name           string
	ProjectID      string
	EstimatedHours decimal.Decimal
	IsActive       bool
}

// =============================================================================
// LOOKUP - What the scheduling core consumes
// =============================================================================

// Directory is the read side used by the placement engine to validate
// references before mutating occupancy.
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetTask(ctx context.Context, id string) (*Task, error)
}

// Store is the full record-management surface used by the CRUD layer.
type Store interface {
	Directory

	SaveEmployee(ctx context.Context, e Employee) error
	ListEmployees(ctx context.Context) ([]Employee, error)
	// DeleteEmployee fails with ErrEmployeeHasAssignments while the
	// employee still has active assignments (restrict-on-delete).
	DeleteEmployee(ctx context.Context, id string) error

	SaveTask(ctx context.Context, t Task) error
	ListTasks(ctx context.Context) ([]Task, error)
	// DeleteTask removes the task and cascades removal to its assignments.
	DeleteTask(ctx context.Context, id string) error
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrEmployeeInactive = errors.New("employee is inactive")
	ErrTaskInactive     = errors.New("task is inactive")

	// ErrEmployeeHasAssignments blocks employee deletion while active
	// assignments reference the employee.
	ErrEmployeeHasAssignments = errors.New("employee has active assignments")
)

// ActiveEmployee resolves an employee and requires it to be active.
func ActiveEmployee(ctx context.Context, d Directory, id string) (*Employee, error) {
	emp, err := d.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("employee %s: %w", id, ErrEmployeeNotFound)
	}
	if !emp.IsActive {
		return nil, fmt.Errorf("employee %s: %w", id, ErrEmployeeInactive)
	}
	return emp, nil
}

// ActiveTask resolves a task and requires it to be active.
func ActiveTask(ctx context.Context, d Directory, id string) (*Task, error) {
	task, err := d.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	if !task.IsActive {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskInactive)
	}
	return task, nil
}
