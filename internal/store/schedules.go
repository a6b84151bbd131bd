package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// CreateSchedule inserts a recurring scan rule for a root.
func (s *Store) CreateSchedule(sc *model.Schedule) (*model.Schedule, error) {
	daysJSON, err := json.Marshal(sc.DaysOfWeek)
	if err != nil {
		return nil, apperr.Store("marshal days_of_week", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO schedules
			(root_id, enabled, name, kind, time_of_day, days_of_week, day_of_month,
			 interval_val, interval_unit, hash_mode, val_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.RootID, sc.Enabled, sc.Name, sc.Kind, sc.TimeOfDay, string(daysJSON), sc.DayOfMonth,
		sc.IntervalVal, sc.IntervalUnit, sc.HashMode, sc.ValMode,
	)
	if err != nil {
		return nil, apperr.Store("create schedule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("create schedule", err)
	}
	return s.GetSchedule(id)
}

// GetSchedule fetches a schedule by id, including soft-deleted ones.
func (s *Store) GetSchedule(scheduleID int64) (*model.Schedule, error) {
	row := s.db.QueryRow(scheduleSelect+" WHERE schedule_id = ?", scheduleID)
	sc, err := scanScheduleRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("schedule %d not found", scheduleID))
	}
	if err != nil {
		return nil, apperr.Store("get schedule", err)
	}
	return sc, nil
}

// ListActiveSchedules returns every enabled, non-deleted schedule — the
// set the Task Manager's scheduler loop iterates to materialize queue
// entries.
func (s *Store) ListActiveSchedules() ([]*model.Schedule, error) {
	rows, err := s.db.Query(scheduleSelect + " WHERE enabled = 1 AND deleted_at IS NULL")
	if err != nil {
		return nil, apperr.Store("list active schedules", err)
	}
	defer rows.Close()

	var out []*model.Schedule
	for rows.Next() {
		sc, err := scanScheduleRows(rows)
		if err != nil {
			return nil, apperr.Store("list active schedules", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListSchedules returns every schedule, including disabled and
// soft-deleted ones, ordered newest-first — the set the API lists with
// joined root info.
func (s *Store) ListSchedules() ([]*model.Schedule, error) {
	rows, err := s.db.Query(scheduleSelect + " ORDER BY schedule_id DESC")
	if err != nil {
		return nil, apperr.Store("list schedules", err)
	}
	defer rows.Close()

	var out []*model.Schedule
	for rows.Next() {
		sc, err := scanScheduleRows(rows)
		if err != nil {
			return nil, apperr.Store("list schedules", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateSchedule overwrites the mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(sc *model.Schedule) (*model.Schedule, error) {
	daysJSON, err := json.Marshal(sc.DaysOfWeek)
	if err != nil {
		return nil, apperr.Store("marshal days_of_week", err)
	}
	_, err = s.db.Exec(`
		UPDATE schedules SET
			name = ?, kind = ?, time_of_day = ?, days_of_week = ?, day_of_month = ?,
			interval_val = ?, interval_unit = ?, hash_mode = ?, val_mode = ?
		WHERE schedule_id = ?`,
		sc.Name, sc.Kind, sc.TimeOfDay, string(daysJSON), sc.DayOfMonth,
		sc.IntervalVal, sc.IntervalUnit, sc.HashMode, sc.ValMode, sc.ScheduleID,
	)
	if err != nil {
		return nil, apperr.Store("update schedule", err)
	}
	return s.GetSchedule(sc.ScheduleID)
}

// SetScheduleEnabled pauses or resumes a schedule.
func (s *Store) SetScheduleEnabled(scheduleID int64, enabled bool) error {
	_, err := s.db.Exec("UPDATE schedules SET enabled = ? WHERE schedule_id = ?", enabled, scheduleID)
	if err != nil {
		return apperr.Store("set schedule enabled", err)
	}
	return nil
}

// DeleteSchedule soft-deletes a schedule; it is never physically removed
// so historical scans can still report the schedule that started them.
func (s *Store) DeleteSchedule(scheduleID int64) error {
	_, err := s.db.Exec("UPDATE schedules SET deleted_at = CURRENT_TIMESTAMP, enabled = 0 WHERE schedule_id = ?", scheduleID)
	if err != nil {
		return apperr.Store("delete schedule", err)
	}
	return nil
}

const scheduleSelect = `
	SELECT schedule_id, root_id, enabled, name, kind, time_of_day, days_of_week, day_of_month,
	       interval_val, interval_unit, hash_mode, val_mode, deleted_at
	FROM schedules`

func scanScheduleRow(row *sql.Row) (*model.Schedule, error) {
	var sc model.Schedule
	var timeOfDay sql.NullString
	var daysJSON string
	var dayOfMonth, intervalVal, intervalUnit sql.NullInt64
	var deletedAt sql.NullTime

	err := row.Scan(&sc.ScheduleID, &sc.RootID, &sc.Enabled, &sc.Name, &sc.Kind, &timeOfDay, &daysJSON,
		&dayOfMonth, &intervalVal, &intervalUnit, &sc.HashMode, &sc.ValMode, &deletedAt)
	if err != nil {
		return nil, err
	}
	applyScheduleNullables(&sc, timeOfDay, daysJSON, dayOfMonth, intervalVal, intervalUnit, deletedAt)
	return &sc, nil
}

func scanScheduleRows(rows *sql.Rows) (*model.Schedule, error) {
	var sc model.Schedule
	var timeOfDay sql.NullString
	var daysJSON string
	var dayOfMonth, intervalVal, intervalUnit sql.NullInt64
	var deletedAt sql.NullTime

	err := rows.Scan(&sc.ScheduleID, &sc.RootID, &sc.Enabled, &sc.Name, &sc.Kind, &timeOfDay, &daysJSON,
		&dayOfMonth, &intervalVal, &intervalUnit, &sc.HashMode, &sc.ValMode, &deletedAt)
	if err != nil {
		return nil, err
	}
	applyScheduleNullables(&sc, timeOfDay, daysJSON, dayOfMonth, intervalVal, intervalUnit, deletedAt)
	return &sc, nil
}

func applyScheduleNullables(sc *model.Schedule, timeOfDay sql.NullString, daysJSON string, dayOfMonth, intervalVal, intervalUnit sql.NullInt64, deletedAt sql.NullTime) {
	if timeOfDay.Valid {
		sc.TimeOfDay = &timeOfDay.String
	}
	if daysJSON != "" {
		_ = json.Unmarshal([]byte(daysJSON), &sc.DaysOfWeek)
	}
	if dayOfMonth.Valid {
		d := int(dayOfMonth.Int64)
		sc.DayOfMonth = &d
	}
	if intervalVal.Valid {
		v := int(intervalVal.Int64)
		sc.IntervalVal = &v
	}
	if intervalUnit.Valid {
		u := model.IntervalUnit(intervalUnit.Int64)
		sc.IntervalUnit = &u
	}
	if deletedAt.Valid {
		sc.DeletedAt = &deletedAt.Time
	}
}
