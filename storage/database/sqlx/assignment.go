package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core/assignment"
)

// uniqueViolation is the postgres error code raised by the
// (tenant, course, class, name) unique index.
const uniqueViolation = "23505"

var orderableColumns = map[string]bool{
	"course":     true,
	"class":      true,
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

type assignmentRow struct {
	ID              string      `db:"id"`
	TenantID        string      `db:"tenant_id"`
	TeacherID       string      `db:"teacher_id"`
	Course          string      `db:"course"`
	Class           string      `db:"class"`
	Name            string      `db:"name"`
	StorageType     string      `db:"storage_type"`
	GitURL          null.String `db:"git_url"`
	GitBranch       null.String `db:"git_branch"`
	GitCredentialID null.String `db:"git_credential_id"`
	BasePath        null.String `db:"base_path"`
	RoundPrefix     null.String `db:"round_prefix"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

type submissionRow struct {
	ID           string    `db:"id"`
	AssignmentID string    `db:"assignment_id"`
	StudentID    string    `db:"student_id"`
	Round        string    `db:"round"`
	FileName     string    `db:"file_name"`
	Size         int64     `db:"size"`
	SubmittedAt  time.Time `db:"submitted_at"`
}

func (repo assignmentRepository) pack(a assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:              a.ID,
		TenantID:        a.TenantID,
		TeacherID:       a.TeacherID,
		Course:          a.Course,
		Class:           a.Class,
		Name:            a.Name,
		StorageType:     a.StorageType,
		GitURL:          null.NewString(a.GitURL, a.GitURL != ""),
		GitBranch:       null.NewString(a.GitBranch, a.GitBranch != ""),
		GitCredentialID: null.NewString(a.GitCredentialID, a.GitCredentialID != ""),
		BasePath:        null.NewString(a.BasePath, a.BasePath != ""),
		RoundPrefix:     null.NewString(a.RoundPrefix, a.RoundPrefix != ""),
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (repo assignmentRepository) unpack(row assignmentRow) assignment.Assignment {
	return assignment.Assignment{
		ID:              row.ID,
		TenantID:        row.TenantID,
		TeacherID:       row.TeacherID,
		Course:          row.Course,
		Class:           row.Class,
		Name:            row.Name,
		StorageType:     row.StorageType,
		GitURL:          row.GitURL.String,
		GitBranch:       row.GitBranch.String,
		GitCredentialID: row.GitCredentialID.String,
		BasePath:        row.BasePath.String,
		RoundPrefix:     row.RoundPrefix.String,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// trapNoRowsErr maps psql "no rows" err to assignment.ErrNotFound
func (repo assignmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return assignment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps a unique_violation to assignment.ErrAssignmentExists
func (repo assignmentRepository) trapUniqueErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
		return assignment.ErrAssignmentExists
	}
	return errors.Wrap(err, msg)
}

func (repo assignmentRepository) CheckAssignmentUniqueness(ctx context.Context, tenantID, course, class, name string, excluded ...assignment.Assignment) error {
	query := `SELECT EXISTS (
		SELECT 1 FROM assignment
		WHERE tenant_id = $1 AND course = $2 AND class = $3 AND name = $4`
	args := []interface{}{tenantID, course, class, name}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, a := range excluded {
			ids = append(ids, a.ID)
		}
		query += ` AND id != ALL($5)`
		args = append(args, pq.Array(ids))
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking assignment uniqueness")
	}
	if exists {
		return assignment.ErrAssignmentExists
	}
	return nil
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	a.ID = uuid.New().String()
	row := repo.pack(a)

	const query = `
		INSERT INTO assignment (
			id, tenant_id, teacher_id, course, class, name, storage_type,
			git_url, git_branch, git_credential_id, base_path, round_prefix,
			created_at, updated_at
		) VALUES (
			:id, :tenant_id, :teacher_id, :course, :class, :name, :storage_type,
			:git_url, :git_branch, :git_credential_id, :base_path, :round_prefix,
			:created_at, :updated_at
		)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		return assignment.Assignment{}, repo.trapUniqueErr(err, "inserting assignment")
	}
	return repo.unpack(row), nil
}

func (repo assignmentRepository) GetAssignmentByID(ctx context.Context, tenantID, id string) (assignment.Assignment, error) {
	var row assignmentRow
	const query = `SELECT * FROM assignment WHERE tenant_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &row, query, tenantID, id); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, "getting assignment")
	}
	return repo.unpack(row), nil
}

func (repo assignmentRepository) FilterAssignments(ctx context.Context, filter assignment.QueryFilter) ([]assignment.Assignment, error) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{filter.TenantID}

	addClause := func(col, val string) {
		if val != "" {
			args = append(args, val)
			where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	addClause("teacher_id", filter.TeacherID)
	addClause("course", filter.Course)
	addClause("class", filter.Class)

	orderBy := "created_at ASC"
	if len(filter.Ordering) > 0 {
		parts := make([]string, 0, len(filter.Ordering))
		for _, ord := range filter.Ordering {
			if orderableColumns[ord.Field] {
				parts = append(parts, ord.String())
			}
		}
		if len(parts) > 0 {
			orderBy = strings.Join(parts, ", ")
		}
	}

	query := fmt.Sprintf(
		`SELECT * FROM assignment WHERE %s ORDER BY %s`,
		strings.Join(where, " AND "), orderBy,
	)

	rows := make([]assignmentRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering assignments")
	}

	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, repo.unpack(row))
	}
	return assignments, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	row := repo.pack(a)

	const query = `
		UPDATE assignment SET
			course = :course, class = :class, name = :name,
			git_url = :git_url, git_branch = :git_branch,
			git_credential_id = :git_credential_id, base_path = :base_path,
			round_prefix = :round_prefix, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return assignment.Assignment{}, repo.trapUniqueErr(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return repo.unpack(row), nil
}

func (repo assignmentRepository) DeleteAssignmentsByID(ctx context.Context, tenantID string, ids ...string) error {
	// submissions cascade via FK
	const query = `DELETE FROM assignment WHERE tenant_id = $1 AND id = ANY($2)`
	if _, err := repo.db.ExecContext(ctx, query, tenantID, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting assignments")
	}
	return nil
}

func (repo assignmentRepository) UpsertSubmission(ctx context.Context, sub assignment.SubmissionRecord) (assignment.SubmissionRecord, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	// last-write-wins on (assignment, round, file name)
	const query = `
		INSERT INTO submission (id, assignment_id, student_id, round, file_name, size, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (assignment_id, round, file_name) DO UPDATE
		SET student_id = EXCLUDED.student_id, size = EXCLUDED.size, submitted_at = EXCLUDED.submitted_at
		RETURNING id`
	var id string
	err := repo.db.GetContext(ctx, &id, query,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.Round, sub.FileName, sub.Size, sub.SubmittedAt.UTC(),
	)
	if err != nil {
		return assignment.SubmissionRecord{}, errors.Wrap(err, "upserting submission")
	}
	sub.ID = id
	return sub, nil
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]assignment.SubmissionRecord, error) {
	rows := make([]submissionRow, 0)
	const query = `SELECT * FROM submission WHERE assignment_id = $1 ORDER BY submitted_at ASC`
	if err := repo.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}

	subs := make([]assignment.SubmissionRecord, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, assignment.SubmissionRecord{
			ID:           row.ID,
			AssignmentID: row.AssignmentID,
			StudentID:    row.StudentID,
			Round:        row.Round,
			FileName:     row.FileName,
			Size:         row.Size,
			SubmittedAt:  row.SubmittedAt,
		})
	}
	return subs, nil
}
