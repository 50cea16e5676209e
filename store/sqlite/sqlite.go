/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (schedule.Store, leave.Store,
  directory.Store) using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  assignments: Occupancy facts, one row per placed unit
  records:     Absence records with approval state
  allocations: Yearly leave quotas per employee
  employees:   Directory records
  tasks:       Project task records

OCCUPANCY ENFORCEMENT:
  The uniqueness invariant on (employee_id, date, slot, column_start) for
  active rows is a partial unique index; a violation surfaces as
  schedule.ErrWriteConflict so the placement engine's bounded retry can
  re-validate. Range overlap beyond equal starts is re-checked inside the
  write transaction as the commit-time backstop.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for better read
  concurrency. In production with PostgreSQL, database-level concurrency
  control handles this instead.

SEE ALSO:
  - store/memory: In-memory implementation for testing
  - schedule/placer.go: The only writer path into assignments
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/planning-engine/calendar"
	"github.com/warp/planning-engine/directory"
	"github.com/warp/planning-engine/leave"
	"github.com/warp/planning-engine/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Occupancy facts
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		task_id TEXT,
		absence_type TEXT,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		slot TEXT NOT NULL,
		column_start INTEGER NOT NULL,
		column_span INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one active unit per column start in a half-day slot.
	-- Deactivated rows stay for history and drop out of the index.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_active_position
		ON assignments(employee_id, date, slot, column_start)
		WHERE active = 1;

	-- Occupancy reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_assignments_slot
		ON assignments(employee_id, date, slot) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_assignments_task
		ON assignments(task_id) WHERE task_id IS NOT NULL;

	-- Absence records
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_is_am INTEGER NOT NULL,
		end_is_am INTEGER NOT NULL,
		days TEXT NOT NULL,
		hours TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		decided_by TEXT,
		decided_at TEXT,
		decision_notes TEXT,
		assignment_ids_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_employee_start
		ON records(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_records_status
		ON records(status);

	-- Yearly leave quotas
	CREATE TABLE IF NOT EXISTS allocations (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		annual_days TEXT NOT NULL,
		sick_days TEXT NOT NULL,
		other_days TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);

	-- Directory
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team_id TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project_id TEXT,
		estimated_hours TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULE STORE (schedule.Store interface)
// =============================================================================

// CreateAssignment inserts an occupancy row. The overlap re-check and the
// partial unique index together are the commit-time backstop behind the
// placement engine's slot locks.
func (s *Store) CreateAssignment(ctx context.Context, a schedule.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if a.Active {
			if err := checkOverlap(ctx, tx, a); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignments
			(id, kind, task_id, absence_type, employee_id, date, slot,
			 column_start, column_span, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID,
			string(a.Kind),
			nullString(a.TaskID),
			nullString(string(a.Absence)),
			a.Unit.EmployeeID,
			a.Unit.Date.String(),
			a.Unit.Slot.String(),
			a.Unit.ColumnStart,
			a.Unit.ColumnSpan,
			boolInt(a.Active),
			a.CreatedAt.Format(time.RFC3339),
			a.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("assignment %s: %w", a.ID, schedule.ErrWriteConflict)
			}
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
		return nil
	})
}

// UpdateAssignment rewrites geometry and active flag in one statement, so
// a move never exists half-applied.
func (s *Store) UpdateAssignment(ctx context.Context, a schedule.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if a.Active {
			if err := checkOverlap(ctx, tx, a); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE assignments
			SET date = ?, slot = ?, column_start = ?, column_span = ?,
			    active = ?, updated_at = ?
			WHERE id = ?`,
			a.Unit.Date.String(),
			a.Unit.Slot.String(),
			a.Unit.ColumnStart,
			a.Unit.ColumnSpan,
			boolInt(a.Active),
			a.UpdatedAt.Format(time.RFC3339),
			a.ID,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("assignment %s: %w", a.ID, schedule.ErrWriteConflict)
			}
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("assignment %s: %w", a.ID, schedule.ErrAssignmentNotFound)
		}
		return nil
	})
}

// GetAssignment returns nil for unknown ids.
func (s *Store) GetAssignment(ctx context.Context, id string) (*schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryAssignments(ctx, assignmentSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ActiveAssignments returns both slots of a day, morning first, ordered
// by column start.
func (s *Store) ActiveAssignments(ctx context.Context, employeeID string, date calendar.Date) ([]schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAssignments(ctx, assignmentSelect+`
		WHERE employee_id = ? AND date = ? AND active = 1
		ORDER BY CASE slot WHEN 'morning' THEN 0 ELSE 1 END, column_start`,
		employeeID, date.String())
}

// ActiveSlotAssignments narrows to one half-day slot.
func (s *Store) ActiveSlotAssignments(ctx context.Context, employeeID string, date calendar.Date, slot calendar.Slot) ([]schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAssignments(ctx, assignmentSelect+`
		WHERE employee_id = ? AND date = ? AND slot = ? AND active = 1
		ORDER BY column_start`,
		employeeID, date.String(), slot.String())
}

// DeactivateAssignment clears the active flag, freeing the row's columns
// while keeping it for history.
func (s *Store) DeactivateAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE assignments SET active = 0, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	return err
}

const assignmentSelect = `
	SELECT id, kind, task_id, absence_type, employee_id, date, slot,
	       column_start, column_span, active, created_at, updated_at
	FROM assignments`

func (s *Store) queryAssignments(ctx context.Context, query string, args ...any) ([]schedule.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []schedule.Assignment
	for rows.Next() {
		var (
			a                    schedule.Assignment
			kind, date, slot     string
			taskID, absenceType  sql.NullString
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&a.ID, &kind, &taskID, &absenceType,
			&a.Unit.EmployeeID, &date, &slot,
			&a.Unit.ColumnStart, &a.Unit.ColumnSpan, &active,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Kind = schedule.Kind(kind)
		a.TaskID = taskID.String
		a.Absence = schedule.AbsenceType(absenceType.String)
		a.Active = active == 1
		if a.Unit.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		if a.Unit.Slot, err = calendar.ParseSlot(slot); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// checkOverlap rejects a write whose column range intersects any other
// active row in the same slot. The unique index only catches equal
// starts; this closes the rest of the invariant.
func checkOverlap(ctx context.Context, tx *sql.Tx, a schedule.Assignment) error {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE employee_id = ? AND date = ? AND slot = ? AND active = 1
		  AND id != ?
		  AND column_start < ? AND ? < column_start + column_span`,
		a.Unit.EmployeeID, a.Unit.Date.String(), a.Unit.Slot.String(),
		a.ID, a.Unit.ColumnEnd(), a.Unit.ColumnStart,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check occupancy: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("assignment %s overlaps occupied columns: %w",
			a.ID, schedule.ErrWriteConflict)
	}
	return nil
}

// =============================================================================
// LEAVE STORE (leave.Store interface)
// =============================================================================

func (s *Store) CreateRecord(ctx context.Context, r leave.AbsenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, _ := json.Marshal(r.AssignmentIDs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records
		(id, employee_id, type, start_date, end_date, start_is_am, end_is_am,
		 days, hours, status, reason, decided_by, decided_at, decision_notes,
		 assignment_ids_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, string(r.Type),
		r.StartDate.String(), r.EndDate.String(),
		boolInt(r.StartIsAM), boolInt(r.EndIsAM),
		r.Days.String(), r.Hours.String(),
		string(r.Status), r.Reason,
		nullString(r.DecidedBy), nullTime(r.DecidedAt), r.DecisionNotes,
		string(ids),
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, r leave.AbsenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, _ := json.Marshal(r.AssignmentIDs)
	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET status = ?, reason = ?, decided_by = ?, decided_at = ?,
		    decision_notes = ?, assignment_ids_json = ?, updated_at = ?
		WHERE id = ?`,
		string(r.Status), r.Reason,
		nullString(r.DecidedBy), nullTime(r.DecidedAt), r.DecisionNotes,
		string(ids), r.UpdatedAt.Format(time.RFC3339),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", r.ID, leave.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryRecords(ctx, recordSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) RecordsForYear(ctx context.Context, employeeID string, year int) ([]leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, recordSelect+`
		WHERE employee_id = ? AND start_date >= ? AND start_date <= ?
		ORDER BY start_date, id`,
		employeeID,
		fmt.Sprintf("%04d-01-01", year),
		fmt.Sprintf("%04d-12-31", year))
}

func (s *Store) ListRecords(ctx context.Context, employeeID string, status leave.Status) ([]leave.AbsenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := recordSelect + " WHERE 1=1"
	var args []any
	if employeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, employeeID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY start_date, id"
	return s.queryRecords(ctx, query, args...)
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, leave.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) GetAllocation(ctx context.Context, employeeID string, year int) (*leave.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var annual, sick, other string
	err := s.db.QueryRowContext(ctx, `
		SELECT annual_days, sick_days, other_days
		FROM allocations WHERE employee_id = ? AND year = ?`,
		employeeID, year,
	).Scan(&annual, &sick, &other)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation: %w", err)
	}

	a := leave.Allocation{EmployeeID: employeeID, Year: year}
	if a.AnnualDays, err = decimal.NewFromString(annual); err != nil {
		return nil, err
	}
	if a.SickDays, err = decimal.NewFromString(sick); err != nil {
		return nil, err
	}
	if a.OtherDays, err = decimal.NewFromString(other); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveAllocation(ctx context.Context, a leave.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allocations (employee_id, year, annual_days, sick_days, other_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year) DO UPDATE SET
			annual_days = excluded.annual_days,
			sick_days = excluded.sick_days,
			other_days = excluded.other_days`,
		a.EmployeeID, a.Year,
		a.AnnualDays.String(), a.SickDays.String(), a.OtherDays.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

const recordSelect = `
	SELECT id, employee_id, type, start_date, end_date, start_is_am,
	       end_is_am, days, hours, status, reason, decided_by, decided_at,
	       decision_notes, assignment_ids_json, created_at, updated_at
	FROM records`

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]leave.AbsenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []leave.AbsenceRecord
	for rows.Next() {
		var (
			r                       leave.AbsenceRecord
			typ, startDate, endDate string
			startIsAM, endIsAM      int
			days, hours, status     string
			reason, notes           sql.NullString
			decidedBy, decidedAt    sql.NullString
			idsJSON                 sql.NullString
			createdAt, updatedAt    string
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &typ, &startDate, &endDate,
			&startIsAM, &endIsAM, &days, &hours, &status, &reason,
			&decidedBy, &decidedAt, &notes, &idsJSON,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Type = schedule.AbsenceType(typ)
		r.StartIsAM = startIsAM == 1
		r.EndIsAM = endIsAM == 1
		r.Status = leave.Status(status)
		r.Reason = reason.String
		r.DecidedBy = decidedBy.String
		r.DecisionNotes = notes.String
		if r.StartDate, err = calendar.ParseDate(startDate); err != nil {
			return nil, err
		}
		if r.EndDate, err = calendar.ParseDate(endDate); err != nil {
			return nil, err
		}
		if r.Days, err = decimal.NewFromString(days); err != nil {
			return nil, err
		}
		if r.Hours, err = decimal.NewFromString(hours); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			t, err := time.Parse(time.RFC3339, decidedAt.String)
			if err != nil {
				return nil, err
			}
			r.DecidedAt = &t
		}
		if idsJSON.Valid && idsJSON.String != "" && idsJSON.String != "null" {
			if err := json.Unmarshal([]byte(idsJSON.String), &r.AssignmentIDs); err != nil {
				return nil, fmt.Errorf("failed to decode assignment ids: %w", err)
			}
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// DIRECTORY STORE (directory.Store interface)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e directory.Employee
	var teamID sql.NullString
	var active int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, team_id, is_active FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &teamID, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query employee: %w", err)
	}
	e.TeamID = teamID.String
	e.IsActive = active == 1
	return &e, nil
}

func (s *Store) SaveEmployee(ctx context.Context, e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, team_id, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			team_id = excluded.team_id,
			is_active = excluded.is_active`,
		e.ID, e.Name, nullString(e.TeamID), boolInt(e.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, team_id, is_active FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []directory.Employee
	for rows.Next() {
		var e directory.Employee
		var teamID sql.NullString
		var active int
		if err := rows.Scan(&e.ID, &e.Name, &teamID, &active); err != nil {
			return nil, err
		}
		e.TeamID = teamID.String
		e.IsActive = active == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEmployee refuses deletion while the employee still has active
// assignments (restrict-on-delete).
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM assignments WHERE employee_id = ? AND active = 1", id,
		).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("employee %s: %w", id, directory.ErrEmployeeHasAssignments)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("employee %s: %w", id, directory.ErrEmployeeNotFound)
		}
		return nil
	})
}

func (s *Store) GetTask(ctx context.Context, id string) (*directory.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t directory.Task
	var projectID sql.NullString
	var hours string
	var active int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, project_id, estimated_hours, is_active FROM tasks WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &projectID, &hours, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	t.ProjectID = projectID.String
	t.IsActive = active == 1
	if t.EstimatedHours, err = decimal.NewFromString(hours); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) SaveTask(ctx context.Context, t directory.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, project_id, estimated_hours, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			project_id = excluded.project_id,
			estimated_hours = excluded.estimated_hours,
			is_active = excluded.is_active`,
		t.ID, t.Name, nullString(t.ProjectID), t.EstimatedHours.String(), boolInt(t.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context) ([]directory.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, project_id, estimated_hours, is_active FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []directory.Task
	for rows.Next() {
		var t directory.Task
		var projectID sql.NullString
		var hours string
		var active int
		if err := rows.Scan(&t.ID, &t.Name, &projectID, &hours, &active); err != nil {
			return nil, err
		}
		t.ProjectID = projectID.String
		t.IsActive = active == 1
		if t.EstimatedHours, err = decimal.NewFromString(hours); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTask removes the task and cascades removal to its assignments,
// atomically.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("task %s: %w", id, directory.ErrTaskNotFound)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM assignments WHERE task_id = ?", id)
		return err
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time interface checks.
var (
	_ schedule.Store  = (*Store)(nil)
	_ leave.Store     = (*Store)(nil)
	_ directory.Store = (*Store)(nil)
)
