/*
Package memory is the in-memory store used by tests and by the dev server
when no database path is configured.

PURPOSE:
  One Store implements all three persistence interfaces (schedule.Store,
  leave.Store, directory.Store) over plain maps behind a single RWMutex.
  It enforces the same write invariants as the durable store: the active
  occupancy uniqueness check with ErrWriteConflict on collision, the
  restrict rule on employee deletion and the cascade rule on task
  deletion. Tests against this store therefore exercise the real error
  paths, not a permissive stand-in.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
)

// Store holds everything in maps keyed by id.
type Store struct {
	mu          sync.RWMutex
	assignments map[string]schedule.Assignment
	records     map[string]leave.AbsenceRecord
	allocations map[string]leave.Allocation // employeeID/year
	employees   map[string]directory.Employee
	tasks       map[string]directory.Task
}

// New returns an empty store.
func New() *Store {
	return &Store{
		assignments: make(map[string]schedule.Assignment),
		records:     make(map[string]leave.AbsenceRecord),
		allocations: make(map[string]leave.Allocation),
		employees:   make(map[string]directory.Employee),
		tasks:       make(map[string]directory.Task),
	}
}

func allocationKey(employeeID string, year int) string {
	return fmt.Sprintf("%s/%d", employeeID, year)
}

// Close satisfies the store lifecycle shared with the durable backend.
func (s *Store) Close() error { return nil }

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (s *Store) CreateAssignment(ctx context.Context, a schedule.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; ok {
		return fmt.Errorf("assignment %s already exists", a.ID)
	}
	if a.Active {
		if err := s.checkOccupancy(a); err != nil {
			return err
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a schedule.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; !ok {
		return fmt.Errorf("assignment %s: %w", a.ID, schedule.ErrAssignmentNotFound)
	}
	if a.Active {
		if err := s.checkOccupancy(a); err != nil {
			return err
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) ActiveAssignments(ctx context.Context, employeeID string, date calendar.Date) ([]schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.Assignment
	for _, a := range s.assignments {
		if a.Active && a.Unit.EmployeeID == employeeID && a.Unit.Date.Equal(date) {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (s *Store) ActiveSlotAssignments(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) ([]schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schedule.Assignment
	for _, a := range s.assignments {
		if a.Active && a.Unit.EmployeeID == employeeID && a.Unit.Date.Equal(date) && a.Unit.Slot == slot {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (s *Store) DeactivateAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil
	}
	a.Active = false
	s.assignments[id] = a
	return nil
}

// checkOccupancy is the store-level backstop for the occupancy invariant:
// no two active assignments for the same (employee, date, slot) may share
// a column start or overlap at all. Caller holds the write lock.
func (s *Store) checkOccupancy(a schedule.Assignment) error {
	for _, other := range s.assignments {
		if other.ID == a.ID || !other.Active {
			continue
		}
		if other.Unit.EmployeeID != a.Unit.EmployeeID ||
			!other.Unit.Date.Equal(a.Unit.Date) ||
			other.Unit.Slot != a.Unit.Slot {
			continue
		}
		if other.Unit.ColumnStart == a.Unit.ColumnStart || calendar.Overlaps(a.Unit, other.Unit) {
			return fmt.Errorf("assignment %s collides with %s: %w",
				a.ID, other.ID, schedule.ErrWriteConflict)
		}
	}
	return nil
}

func sortAssignments(list []schedule.Assignment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Unit.Slot != list[j].Unit.Slot {
			return slotRank(list[i].Unit.Slot) < slotRank(list[j].Unit.Slot)
		}
		return list[i].Unit.ColumnStart < list[j].Unit.ColumnStart
	})
}

func slotRank(s calendar.Slot) int {
	if s == calendar.SlotMorning {
		return 0
	}
	return 1
}

// =============================================================================
// LEAVE STORE
// =============================================================================

func (s *Store) CreateRecord(ctx context.Context, r leave.AbsenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("record %s already exists", r.ID)
	}
	s.records[r.ID] = r
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, r leave.AbsenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return fmt.Errorf("record %s: %w", r.ID, leave.ErrRecordNotFound)
	}
	s.records[r.ID] = r
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) RecordsForYear(ctx context.Context, employeeID string, year int) ([]leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.AbsenceRecord
	for _, r := range s.records {
		if r.EmployeeID == employeeID && r.Year() == year {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) ListRecords(ctx context.Context, employeeID string, status leave.Status) ([]leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.AbsenceRecord
	for _, r := range s.records {
		if employeeID != "" && r.EmployeeID != employeeID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, leave.ErrRecordNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) GetAllocation(ctx context.Context, employeeID string, year int) (*leave.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[allocationKey(employeeID, year)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[allocationKey(a.EmployeeID, a.Year)] = a
	return nil
}

func sortRecords(list []leave.AbsenceRecord) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.Before(list[j].StartDate)
		}
		return list[i].ID < list[j].ID
	})
}

// =============================================================================
// DIRECTORY STORE
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) SaveEmployee(ctx context.Context, e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[id]; !ok {
		return fmt.Errorf("employee %s: %w", id, directory.ErrEmployeeNotFound)
	}
	for _, a := range s.assignments {
		if a.Active && a.Unit.EmployeeID == id {
			return fmt.Errorf("employee %s: %w", id, directory.ErrEmployeeHasAssignments)
		}
	}
	delete(s.employees, id)
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*directory.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) SaveTask(ctx context.Context, t directory.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) ListTasks(ctx context.Context) ([]directory.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteTask removes the task and deletes its assignments (cascade).
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, directory.ErrTaskNotFound)
	}
	for aid, a := range s.assignments {
		if a.Kind == schedule.KindTask && a.TaskID == id {
			delete(s.assignments, aid)
		}
	}
	delete(s.tasks, id)
	return nil
}

// Compile-time interface checks.
var (
	_ schedule.Store  = (*Store)(nil)
	_ leave.Store     = (*Store)(nil)
	_ directory.Store = (*Store)(nil)
)
