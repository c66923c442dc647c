package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/kazi/core/assignment"
)

type assignmentRepository struct {
	assignments *assignmentTable
	submissions *submissionTable
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{assignments: db.assignment, submissions: db.submission}
}

func (repo *assignmentRepository) query() []assignment.Assignment {
	all := make([]assignment.Assignment, 0, len(repo.assignments.table))
	for _, a := range repo.assignments.table {
		all = append(all, *a)
	}
	return all
}

func isExcluded(a assignment.Assignment, excluded []assignment.Assignment) bool {
	for _, e := range excluded {
		if e.ID == a.ID {
			return true
		}
	}
	return false
}

func (repo *assignmentRepository) CheckAssignmentUniqueness(ctx context.Context, tenantID, course, class, name string, excluded ...assignment.Assignment) error {
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	for _, a := range repo.query() {
		if a.TenantID == tenantID && a.Course == course && a.Class == class && a.Name == name && !isExcluded(a, excluded) {
			return assignment.ErrAssignmentExists
		}
	}
	return nil
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.assignments.Lock()
	defer repo.assignments.Unlock()

	for _, existing := range repo.assignments.table {
		if existing.TenantID == a.TenantID && existing.Course == a.Course && existing.Class == a.Class && existing.Name == a.Name {
			return assignment.Assignment{}, assignment.ErrAssignmentExists
		}
	}

	a.ID = uuid.New().String()
	repo.assignments.table[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) GetAssignmentByID(ctx context.Context, tenantID, id string) (assignment.Assignment, error) {
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	if a, ok := repo.assignments.table[id]; ok && a.TenantID == tenantID {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) FilterAssignments(ctx context.Context, filter assignment.QueryFilter) ([]assignment.Assignment, error) {
	repo.assignments.RLock()
	defer repo.assignments.RUnlock()

	matched := make([]assignment.Assignment, 0)
	for _, a := range repo.query() {
		if a.TenantID != filter.TenantID {
			continue
		}
		if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Course != "" && a.Course != filter.Course {
			continue
		}
		if filter.Class != "" && a.Class != filter.Class {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.assignments.Lock()
	defer repo.assignments.Unlock()

	existing, ok := repo.assignments.table[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	repo.assignments.table[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignmentsByID(ctx context.Context, tenantID string, ids ...string) error {
	repo.assignments.Lock()
	defer repo.assignments.Unlock()
	repo.submissions.Lock()
	defer repo.submissions.Unlock()

	for _, id := range ids {
		a, ok := repo.assignments.table[id]
		if !ok || a.TenantID != tenantID {
			continue
		}
		delete(repo.assignments.table, id)

		// cascade
		for sid, sub := range repo.submissions.table {
			if sub.AssignmentID == id {
				delete(repo.submissions.table, sid)
			}
		}
	}
	return nil
}

func (repo *assignmentRepository) UpsertSubmission(ctx context.Context, sub assignment.SubmissionRecord) (assignment.SubmissionRecord, error) {
	repo.submissions.Lock()
	defer repo.submissions.Unlock()

	for _, existing := range repo.submissions.table {
		if existing.AssignmentID == sub.AssignmentID && existing.Round == sub.Round && existing.FileName == sub.FileName {
			sub.ID = existing.ID
			repo.submissions.table[sub.ID] = &sub
			return sub, nil
		}
	}

	sub.ID = uuid.New().String()
	repo.submissions.table[sub.ID] = &sub
	return sub, nil
}

func (repo *assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]assignment.SubmissionRecord, error) {
	repo.submissions.RLock()
	defer repo.submissions.RUnlock()

	subs := make([]assignment.SubmissionRecord, 0)
	for _, sub := range repo.submissions.table {
		if sub.AssignmentID == assignmentID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return subs, nil
}
