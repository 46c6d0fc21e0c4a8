package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/edudesk/internal/domain/directory/entity"
)

// DirectoryPostgres implements the directory repository for PostgreSQL
type DirectoryPostgres struct {
	pool *pgxpool.Pool
}

// NewDirectoryPostgres creates a new PostgreSQL directory repository
func NewDirectoryPostgres(pool *pgxpool.Pool) *DirectoryPostgres {
	return &DirectoryPostgres{pool: pool}
}

// GetUser retrieves a user by id, returning nil when absent
func (r *DirectoryPostgres) GetUser(ctx context.Context, schoolID, userID string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, school_id, first_name, last_name, role
		FROM users
		WHERE school_id = $1 AND id = $2
	`, schoolID, userID)

	var user entity.User
	err := row.Scan(&user.ID, &user.SchoolID, &user.FirstName, &user.LastName, &user.Role)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &user, nil
}

// ListUsersByRole retrieves all users of a school holding the given role
func (r *DirectoryPostgres) ListUsersByRole(ctx context.Context, schoolID, role string) ([]entity.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, school_id, first_name, last_name, role
		FROM users
		WHERE school_id = $1 AND role = $2
		ORDER BY last_name, first_name
	`, schoolID, role)
	if err != nil {
		return nil, fmt.Errorf("querying users by role: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// GetClass retrieves a class by id, returning nil when absent
func (r *DirectoryPostgres) GetClass(ctx context.Context, schoolID, classID string) (*entity.Class, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, school_id, name
		FROM classes
		WHERE school_id = $1 AND id = $2
	`, schoolID, classID)

	var class entity.Class
	err := row.Scan(&class.ID, &class.SchoolID, &class.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning class: %w", err)
	}
	return &class, nil
}

// ListClasses retrieves all classes of a school
func (r *DirectoryPostgres) ListClasses(ctx context.Context, schoolID string) ([]entity.Class, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, school_id, name
		FROM classes
		WHERE school_id = $1
		ORDER BY name
	`, schoolID)
	if err != nil {
		return nil, fmt.Errorf("querying classes: %w", err)
	}
	defer rows.Close()

	var classes []entity.Class
	for rows.Next() {
		var class entity.Class
		if err := rows.Scan(&class.ID, &class.SchoolID, &class.Name); err != nil {
			return nil, fmt.Errorf("scanning class row: %w", err)
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// ListClassStudents retrieves the student roster of a class
func (r *DirectoryPostgres) ListClassStudents(ctx context.Context, schoolID, classID string) ([]entity.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.school_id, u.first_name, u.last_name, u.role
		FROM users u
		JOIN class_students cs ON cs.student_id = u.id AND cs.school_id = u.school_id
		WHERE cs.school_id = $1 AND cs.class_id = $2
		ORDER BY u.last_name, u.first_name
	`, schoolID, classID)
	if err != nil {
		return nil, fmt.Errorf("querying class roster: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// scanUsers scans multiple user rows
func scanUsers(rows pgx.Rows) ([]entity.User, error) {
	var users []entity.User
	for rows.Next() {
		var user entity.User
		if err := rows.Scan(&user.ID, &user.SchoolID, &user.FirstName, &user.LastName, &user.Role); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, user)
	}
	return users, nil
}
