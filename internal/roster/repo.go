package roster

import (
	"context"
	"database/sql"
	"log"
)

// Repository reads roster data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListStudents returns all students, normalized. Rows failing
// normalization (CSV imports leave the occasional id-less row) are
// skipped and logged, not surfaced as errors.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, class_id
		FROM students
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	skipped := 0
	for rows.Next() {
		var id string
		var first, last, classID *string
		if err := rows.Scan(&id, &first, &last, &classID); err != nil {
			return nil, err
		}
		s, err := NormalizeStudent(id, deref(first), deref(last), deref(classID))
		if err != nil {
			skipped++
			continue
		}
		students = append(students, s)
	}
	if skipped > 0 {
		log.Printf("roster: skipped %d invalid student rows", skipped)
	}
	return students, rows.Err()
}

// ListStaff returns all staff, normalized.
func (r *Repository) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, department
		FROM staff
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []Staff
	skipped := 0
	for rows.Next() {
		var id string
		var first, last, dept *string
		if err := rows.Scan(&id, &first, &last, &dept); err != nil {
			return nil, err
		}
		s, err := NormalizeStaff(id, deref(first), deref(last), deref(dept))
		if err != nil {
			skipped++
			continue
		}
		staff = append(staff, s)
	}
	if skipped > 0 {
		log.Printf("roster: skipped %d invalid staff rows", skipped)
	}
	return staff, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
