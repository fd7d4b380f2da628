// Package board maintains the dense, zero-based task ordering inside each
// (project, status) column. Every primitive takes its database handle
// explicitly so callers decide the transaction scope.
package board

import (
	"database/sql"
	"fmt"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/models"
)

// Queryer is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

var (
	ErrTaskNotFound = fmt.Errorf("task not found")
	ErrInvalidIDs   = fmt.Errorf("orderedIds contains invalid task id")
)

// MaxPosition returns the highest position in the column, or -1 when the
// column is empty, so appending is always MaxPosition+1.
func MaxPosition(q Queryer, projectID string, status models.TaskStatus) (int, error) {
	var max int
	err := q.QueryRow(
		"SELECT COALESCE(MAX(position), -1) FROM tasks WHERE project_id = ? AND status = ?",
		projectID, status,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

func columnIDs(q Queryer, projectID string, status models.TaskStatus) ([]string, error) {
	rows, err := q.Query(
		"SELECT id FROM tasks WHERE project_id = ? AND status = ? ORDER BY position ASC",
		projectID, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func writePositions(q Queryer, ids []string) error {
	for i, id := range ids {
		if _, err := q.Exec("UPDATE tasks SET position = ? WHERE id = ?", i, id); err != nil {
			return err
		}
	}
	return nil
}

// ReindexColumn rewrites the column's positions to 0..n-1 preserving the
// current relative order. Call it after any operation that can leave a gap.
func ReindexColumn(q Queryer, projectID string, status models.TaskStatus) error {
	ids, err := columnIDs(q, projectID, status)
	if err != nil {
		return err
	}
	return writePositions(q, ids)
}

// Move places the task at toIndex of the toStatus column and rewrites every
// position in the destination; a cross-column move also reindexes the
// source column it left. Full-column rewrites keep the density invariant
// trivially true.
func Move(tx *sql.Tx, projectID, taskID string, toStatus models.TaskStatus, toIndex int) error {
	var taskProject string
	var fromStatus models.TaskStatus
	err := tx.QueryRow(
		"SELECT project_id, status FROM tasks WHERE id = ?", taskID,
	).Scan(&taskProject, &fromStatus)
	if err == sql.ErrNoRows || (err == nil && taskProject != projectID) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}

	dest, err := columnIDs(tx, projectID, toStatus)
	if err != nil {
		return err
	}

	// Splice the moving task into the surviving destination order.
	filtered := dest[:0:0]
	for _, id := range dest {
		if id != taskID {
			filtered = append(filtered, id)
		}
	}
	idx := toIndex
	if idx < 0 {
		idx = 0
	}
	if idx > len(filtered) {
		idx = len(filtered)
	}
	ordered := make([]string, 0, len(filtered)+1)
	ordered = append(ordered, filtered[:idx]...)
	ordered = append(ordered, taskID)
	ordered = append(ordered, filtered[idx:]...)

	if _, err := tx.Exec("UPDATE tasks SET status = ? WHERE id = ?", toStatus, taskID); err != nil {
		return err
	}
	if err := writePositions(tx, ordered); err != nil {
		return err
	}

	if fromStatus != toStatus {
		return ReindexColumn(tx, projectID, fromStatus)
	}
	return nil
}

// BulkReorder applies a client-supplied full ordering to one column. Every
// supplied id must belong to the column; otherwise the whole operation is
// rejected before any write.
func BulkReorder(tx *sql.Tx, projectID string, status models.TaskStatus, orderedIDs []string) error {
	current, err := columnIDs(tx, projectID, status)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(current) {
		return ErrInvalidIDs
	}

	remaining := make(map[string]bool, len(current))
	for _, id := range current {
		remaining[id] = true
	}
	for _, id := range orderedIDs {
		if !remaining[id] {
			return ErrInvalidIDs
		}
		delete(remaining, id)
	}

	return writePositions(tx, orderedIDs)
}
