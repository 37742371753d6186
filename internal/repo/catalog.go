package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coursebook/internal/model"
)

func (r *repository) CreateCourse(ctx context.Context, c *model.Course) (int64, error) {
	query := `
		INSERT INTO courses (name, description, duration_minutes, price, max_participants, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	row := r.db.QueryRowContext(ctx, query,
		c.Name, c.Description, c.DurationMinutes, c.Price, c.MaxParticipants, c.IsActive,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert course: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateCourse(ctx context.Context, c *model.Course) error {
	query := `
		UPDATE courses
		SET name = $1, description = $2, duration_minutes = $3, price = $4,
		    max_participants = $5, is_active = $6
		WHERE id = $7
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		c.Name, c.Description, c.DurationMinutes, c.Price, c.MaxParticipants, c.IsActive, c.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCourseNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	return nil
}

func (r *repository) DeleteCourse(ctx context.Context, id int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var sessions int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE course_id = $1
	`, id).Scan(&sessions)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count course sessions: %w", err)
	}
	if sessions > 0 {
		_ = tx.Rollback()
		return ErrHasSessions
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrCourseNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) GetCourseByID(ctx context.Context, id int64) (*model.Course, error) {
	query := `
		SELECT id, name, description, duration_minutes, price, max_participants, is_active, created_at
		FROM courses WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var c model.Course
	if err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.DurationMinutes, &c.Price,
		&c.MaxParticipants, &c.IsActive, &c.CreatedAt,
	); err != nil {
		return nil, ErrCourseNotFound
	}
	return &c, nil
}

func (r *repository) GetCourses(ctx context.Context, onlyActive bool) ([]model.Course, error) {
	query := `
		SELECT id, name, description, duration_minutes, price, max_participants, is_active, created_at
		FROM courses
	`
	if onlyActive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Description, &c.DurationMinutes, &c.Price,
			&c.MaxParticipants, &c.IsActive, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}

	return courses, rows.Err()
}

func (r *repository) CreateSession(ctx context.Context, s *model.Session) (int64, error) {
	query := `
		INSERT INTO sessions (course_id, start_time, end_time, available_spots, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	row := r.db.QueryRowContext(ctx, query,
		s.CourseID, s.StartTime, s.EndTime, s.AvailableSpots, s.Status,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateSession(ctx context.Context, s *model.Session) error {
	query := `
		UPDATE sessions
		SET start_time = $1, end_time = $2, available_spots = $3, status = $4
		WHERE id = $5
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		s.StartTime, s.EndTime, s.AvailableSpots, s.Status, s.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteSession refuses to delete a session referenced by any registration,
// cancelled ones included: they are retained history.
func (r *repository) DeleteSession(ctx context.Context, id int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var registrations int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations WHERE session_id = $1
	`, id).Scan(&registrations)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count session registrations: %w", err)
	}
	if registrations > 0 {
		_ = tx.Rollback()
		return ErrHasRegistrations
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrSessionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) GetSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `
		SELECT id, course_id, start_time, end_time, available_spots, status, created_at
		FROM sessions WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var s model.Session
	if err := row.Scan(
		&s.ID, &s.CourseID, &s.StartTime, &s.EndTime, &s.AvailableSpots, &s.Status, &s.CreatedAt,
	); err != nil {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *repository) GetUpcomingSessions(ctx context.Context, courseID int64, day *time.Time, now time.Time) ([]model.Session, error) {
	query := `
		SELECT id, course_id, start_time, end_time, available_spots, status, created_at
		FROM sessions
		WHERE status = 'scheduled' AND start_time > $1
	`
	args := []interface{}{now}

	if courseID > 0 {
		args = append(args, courseID)
		query += fmt.Sprintf(` AND course_id = $%d`, len(args))
	}
	if day != nil {
		startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		args = append(args, startOfDay, startOfDay.Add(24*time.Hour))
		query += fmt.Sprintf(` AND start_time >= $%d AND start_time < $%d`, len(args)-1, len(args))
	}
	query += ` ORDER BY start_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(
			&s.ID, &s.CourseID, &s.StartTime, &s.EndTime, &s.AvailableSpots, &s.Status, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
