package assignment

import (
	"time"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/pathname"
)

// Storage types
const (
	StorageGit        = "git"
	StorageFilesystem = "filesystem"
)

var StorageTypes = []string{StorageFilesystem, StorageGit}

// RequiredFields returns the per-storage-type required field names. It is the
// single source of these rules; the server-side validator consumes it and any
// client UI is expected to mirror it.
func RequiredFields(storageType string) []string {
	switch storageType {
	case StorageGit:
		return []string{"git_url", "git_branch"}
	case StorageFilesystem:
		return []string{"base_path"}
	}
	return nil
}

// Assignment is a configured unit of work with a storage backend that
// students submit files into. Exactly one storage mode's fields are
// populated; (tenant, course, class, name) is unique.
type Assignment struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	TeacherID   string `json:"teacher_id"`
	Course      string `json:"course"`
	Class       string `json:"class"`
	Name        string `json:"name"`
	StorageType string `json:"storage_type"`

	// git mode
	GitURL          string `json:"git_url,omitempty"`
	GitBranch       string `json:"git_branch,omitempty"`
	GitCredentialID string `json:"-"`

	// filesystem mode; relative to the tenant's storage base
	BasePath string `json:"base_path,omitempty"`

	RoundPrefix string    `json:"round_prefix"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// IsReadOnly reports whether the backing storage rejects writes.
func (a Assignment) IsReadOnly() bool { return a.StorageType == StorageGit }

func (a Assignment) roundPrefix() string {
	if a.RoundPrefix != "" {
		return a.RoundPrefix
	}
	return pathname.DefaultRoundPrefix
}

// SubmissionRecord tracks a file a student placed under a round directory.
// It is upserted on (assignment, round, file name): a later upload with the
// same derived name replaces the earlier one.
type SubmissionRecord struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	Round        string    `json:"round"`
	FileName     string    `json:"file_name"`
	Size         int64     `json:"size"`
	SubmittedAt  time.Time `json:"submitted_at"` // UTC
}

// Viewer is the acting principal, resolved upstream (JWT claims). Every
// operation is scoped to its tenant.
type Viewer struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	IsAdmin   bool
	IsTeacher bool
	IsStudent bool
}

func (v Viewer) Identity() core.Identity {
	return core.Identity{ID: v.ID, Name: v.Name, Email: v.Email}
}

// NewAssignment is the creation input.
type NewAssignment struct {
	Course      string `json:"course" validate:"required"`
	Class       string `json:"class" validate:"required"`
	Name        string `json:"name" validate:"required"`
	StorageType string `json:"storage_type" validate:"required,storage_type"`

	GitURL          string `json:"git_url" validate:"omitempty,url"`
	GitBranch       string `json:"git_branch"`
	GitCredentialID string `json:"git_credential_id"`

	BasePath string `json:"base_path"`

	RoundPrefix string `json:"round_prefix" validate:"omitempty,alphanum_"`
}

// UpdateAssignment carries partial update input; empty fields preserve the
// stored values. The storage type itself is immutable after creation.
type UpdateAssignment struct {
	Course string `json:"course"`
	Class  string `json:"class"`
	Name   string `json:"name"`

	GitURL          string `json:"git_url" validate:"omitempty,url"`
	GitBranch       string `json:"git_branch"`
	GitCredentialID string `json:"git_credential_id"`

	BasePath string `json:"base_path"`

	RoundPrefix string `json:"round_prefix" validate:"omitempty,alphanum_"`
}

// QueryFilter applies AND semantics on its fields. TenantID and TeacherID
// are forced by the service from the viewer, never trusted from input.
type QueryFilter struct {
	TenantID  string
	TeacherID string
	Course    string `json:"course" query:"course"`
	Class     string `json:"class" query:"class"`

	Ordering []core.DBOrdering
}
