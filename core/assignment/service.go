package assignment

import (
	"context"
	"net/mail"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/pathname"
	"github.com/trezcool/kazi/storage"
)

var (
	// errors
	ErrNotFound             = errors.New("assignment not found")
	ErrAssignmentExists     = errors.New("an assignment with this name already exists for this course and class")
	ErrConfirmationRequired = errors.New("deletion must be explicitly confirmed")
)

type (
	Repository interface {
		// CheckAssignmentUniqueness enforces the (tenant, course, class, name)
		// constraint; excluded assignments (e.g. the one being updated) are
		// ignored.
		CheckAssignmentUniqueness(ctx context.Context, tenantID, course, class, name string, excluded ...Assignment) error
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, tenantID, id string) (Assignment, error)
		// FilterAssignments applies AND operation on available QueryFilter fields.
		FilterAssignments(ctx context.Context, filter QueryFilter) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// DeleteAssignmentsByID cascades to dependent submission records.
		DeleteAssignmentsByID(ctx context.Context, tenantID string, ids ...string) error

		UpsertSubmission(ctx context.Context, sub SubmissionRecord) (SubmissionRecord, error)
		QuerySubmissions(ctx context.Context, assignmentID string) ([]SubmissionRecord, error)
	}

	// AdapterFactory resolves the storage adapter backing an assignment.
	AdapterFactory func(a Assignment) (storage.Adapter, error)

	Service struct {
		conf       *core.Config
		repo       Repository
		mailSvc    core.EmailService
		adapterFor AdapterFactory
	}
)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, adapterFor AdapterFactory) *Service {
	return &Service{conf: conf, repo: repo, mailSvc: mailSvc, adapterFor: adapterFor}
}

// TenantRoot returns the filesystem storage base for a tenant.
func TenantRoot(conf *core.Config, tenantID string) string {
	return filepath.Join(conf.Storage.BaseDir, tenantID)
}

func (svc *Service) checkUniqueness(ctx context.Context, a Assignment, excluded ...Assignment) error {
	if err := svc.repo.CheckAssignmentUniqueness(ctx, a.TenantID, a.Course, a.Class, a.Name, excluded...); err != nil {
		if errors.Cause(err) == ErrAssignmentExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrAssignmentExists.Error()})
		}
		return err
	}
	return nil
}

// sanitizeInto cleans a raw name into fields[dst]; problems are collected
// into flds so the caller reports everything at once.
func sanitizeInto(raw, field string, flds *[]core.FieldError) string {
	name, err := pathname.SanitizeName(raw)
	if err != nil {
		*flds = append(*flds, core.FieldError{Field: field, Error: err.Error()})
		return ""
	}
	return name
}

// Create validates, persists and (filesystem mode) materializes a new
// assignment owned by the viewer. All field problems are reported at once.
func (svc *Service) Create(ctx context.Context, viewer Viewer, na NewAssignment) (Assignment, error) {
	now := time.Now().UTC()
	flds := make([]core.FieldError, 0)

	a := Assignment{
		TenantID:    viewer.TenantID,
		TeacherID:   viewer.ID,
		Course:      sanitizeInto(na.Course, "course", &flds),
		Class:       sanitizeInto(na.Class, "class", &flds),
		Name:        sanitizeInto(na.Name, "name", &flds),
		StorageType: na.StorageType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if na.RoundPrefix != "" {
		a.RoundPrefix = sanitizeInto(na.RoundPrefix, "round_prefix", &flds)
	}

	switch na.StorageType {
	case StorageGit:
		a.GitURL = core.CleanString(na.GitURL)
		a.GitBranch = core.CleanString(na.GitBranch)
		a.GitCredentialID = core.CleanString(na.GitCredentialID)
	case StorageFilesystem:
		a.BasePath = svc.cleanBasePath(viewer.TenantID, na.BasePath, &flds)
	}

	if len(flds) > 0 {
		return Assignment{}, core.NewValidationError(errors.New("invalid assignment"), flds...)
	}

	if err := svc.checkUniqueness(ctx, a); err != nil {
		return Assignment{}, err
	}

	// git mode: confirm the remote and branch exist before persisting
	if a.StorageType == StorageGit {
		ad, err := svc.adapterFor(a)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "resolving storage adapter")
		}
		if v, ok := ad.(storage.RemoteVerifier); ok {
			if err := v.Verify(ctx); err != nil {
				return Assignment{}, err
			}
		}
	}

	a, err := svc.repo.CreateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating assignment")
	}

	if a.StorageType == StorageFilesystem {
		ad, err := svc.adapterFor(a)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "resolving storage adapter")
		}
		if err := ad.CreateDir(ctx, ""); err != nil {
			return Assignment{}, errors.Wrap(err, "materializing assignment root")
		}
	}

	svc.sendCreatedEmail(viewer, a)
	return a, nil
}

// cleanBasePath confines the configured base path to the tenant's storage
// root and stores it relative to that root.
func (svc *Service) cleanBasePath(tenantID, basePath string, flds *[]core.FieldError) string {
	root := TenantRoot(svc.conf, tenantID)
	res := pathname.ValidatePath(core.CleanString(basePath), root)
	if !res.Valid {
		*flds = append(*flds, core.FieldError{Field: "base_path", Error: "path escapes the tenant storage directory"})
		return ""
	}
	rel, err := filepath.Rel(root, res.Resolved)
	if err != nil {
		*flds = append(*flds, core.FieldError{Field: "base_path", Error: "invalid path"})
		return ""
	}
	return filepath.ToSlash(rel)
}

func (svc *Service) sendCreatedEmail(viewer Viewer, a Assignment) {
	if viewer.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: viewer.Name, Address: viewer.Email}},
		Subject:      "Assignment created: " + a.Name,
		TemplateName: "assignment-created",
		TemplateData: a,
	})
}

// GetByID fetches an assignment within the viewer's tenant. Cross-tenant ids
// resolve to ErrNotFound; existence is never leaked.
func (svc *Service) GetByID(ctx context.Context, viewer Viewer, id string) (Assignment, error) {
	return svc.getForViewer(ctx, viewer, id, false)
}

func (svc *Service) getForViewer(ctx context.Context, viewer Viewer, id string, ownedOnly bool) (Assignment, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, viewer.TenantID, id)
	if err != nil {
		return Assignment{}, err
	}
	if ownedOnly && !viewer.IsAdmin && a.TeacherID != viewer.ID {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

// Filter lists assignments. Tenant isolation is unconditional; non-admin
// viewers are additionally restricted to their own assignments even when no
// explicit filter is passed.
func (svc *Service) Filter(ctx context.Context, viewer Viewer, filter QueryFilter) ([]Assignment, error) {
	filter.TenantID = viewer.TenantID
	if !viewer.IsAdmin {
		filter.TeacherID = viewer.ID
	}
	return svc.repo.FilterAssignments(ctx, filter)
}

// Update applies partial update semantics: empty input fields preserve
// stored values. Only the owner (or an admin) may update.
func (svc *Service) Update(ctx context.Context, viewer Viewer, id string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.getForViewer(ctx, viewer, id, true)
	if err != nil {
		return Assignment{}, err
	}

	flds := make([]core.FieldError, 0)
	if ua.Course != "" {
		a.Course = sanitizeInto(ua.Course, "course", &flds)
	}
	if ua.Class != "" {
		a.Class = sanitizeInto(ua.Class, "class", &flds)
	}
	if ua.Name != "" {
		a.Name = sanitizeInto(ua.Name, "name", &flds)
	}
	if ua.RoundPrefix != "" {
		a.RoundPrefix = sanitizeInto(ua.RoundPrefix, "round_prefix", &flds)
	}

	switch a.StorageType {
	case StorageGit:
		if ua.BasePath != "" {
			flds = append(flds, core.FieldError{Field: "base_path", Error: storageFieldText})
		}
		if ua.GitURL != "" {
			a.GitURL = core.CleanString(ua.GitURL)
		}
		if ua.GitBranch != "" {
			a.GitBranch = core.CleanString(ua.GitBranch)
		}
		if ua.GitCredentialID != "" {
			a.GitCredentialID = core.CleanString(ua.GitCredentialID)
		}
	case StorageFilesystem:
		if ua.GitURL != "" || ua.GitBranch != "" || ua.GitCredentialID != "" {
			flds = append(flds, core.FieldError{Field: "git_url", Error: storageFieldText})
		}
		if ua.BasePath != "" {
			a.BasePath = svc.cleanBasePath(a.TenantID, ua.BasePath, &flds)
		}
	}

	if len(flds) > 0 {
		return Assignment{}, core.NewValidationError(errors.New("invalid assignment"), flds...)
	}

	if err := svc.checkUniqueness(ctx, a, a); err != nil {
		return Assignment{}, err
	}

	a.UpdatedAt = time.Now().UTC()
	a, err = svc.repo.UpdateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return a, nil
}

// Delete removes assignments and, via the repository, their dependent
// submission records. It refuses to act without explicit confirmation.
func (svc *Service) Delete(ctx context.Context, viewer Viewer, ids []string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	for _, id := range ids {
		if _, err := svc.getForViewer(ctx, viewer, id, true); err != nil {
			return err
		}
	}
	return svc.repo.DeleteAssignmentsByID(ctx, viewer.TenantID, ids...)
}

// GetStructure lists the assignment's storage root. Low-level I/O errors
// surface only as the storage error categories.
func (svc *Service) GetStructure(ctx context.Context, viewer Viewer, id string) ([]storage.Entry, error) {
	a, err := svc.getForViewer(ctx, viewer, id, false)
	if err != nil {
		return nil, err
	}
	ad, err := svc.adapterFor(a)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage adapter")
	}
	entries, err := ad.ListDir(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "listing assignment structure")
	}
	return entries, nil
}

// ListRounds returns the assignment's round directories, oldest first.
func (svc *Service) ListRounds(ctx context.Context, viewer Viewer, id string) ([]string, error) {
	a, err := svc.getForViewer(ctx, viewer, id, false)
	if err != nil {
		return nil, err
	}
	ad, err := svc.adapterFor(a)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage adapter")
	}
	return svc.rounds(ctx, ad)
}

func (svc *Service) rounds(ctx context.Context, ad storage.Adapter) ([]string, error) {
	entries, err := ad.ListDir(ctx, "")
	if err != nil {
		if errors.Cause(err) == storage.ErrNotFound {
			return nil, nil // root not materialized yet
		}
		return nil, errors.Wrap(err, "listing rounds")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir && pathname.IsRoundName(e.Name) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// SubmitFile stores a student's file under a round directory. An empty round
// starts a new one. The stored name derives deterministically from the
// student identity and the sanitized original name, so a resubmission
// replaces the earlier upload (last-write-wins).
func (svc *Service) SubmitFile(ctx context.Context, viewer Viewer, id, round, original string, data []byte) (SubmissionRecord, error) {
	a, err := svc.getForViewer(ctx, viewer, id, false)
	if err != nil {
		return SubmissionRecord{}, err
	}
	if a.IsReadOnly() {
		return SubmissionRecord{}, storage.ErrUnsupportedOperation
	}

	fname, err := pathname.SubmissionFileName(viewer.ID, original)
	if err != nil {
		return SubmissionRecord{}, core.NewValidationError(err, core.FieldError{Field: "file_name", Error: pathname.ErrInvalidName.Error()})
	}

	ad, err := svc.adapterFor(a)
	if err != nil {
		return SubmissionRecord{}, errors.Wrap(err, "resolving storage adapter")
	}

	existing, err := svc.rounds(ctx, ad)
	if err != nil {
		return SubmissionRecord{}, err
	}

	if round == "" {
		round = pathname.NextRoundName(existing, a.roundPrefix())
		if err := ad.CreateDir(ctx, round); err != nil {
			return SubmissionRecord{}, errors.Wrap(err, "creating round directory")
		}
	} else if !containsString(existing, round) {
		return SubmissionRecord{}, core.NewValidationError(errors.New("unknown round"), core.FieldError{Field: "round", Error: "round does not exist"})
	}

	if err := ad.WriteFile(ctx, path.Join(round, fname), data); err != nil {
		return SubmissionRecord{}, errors.Wrap(err, "writing submission")
	}

	rec := SubmissionRecord{
		AssignmentID: a.ID,
		StudentID:    viewer.ID,
		Round:        round,
		FileName:     fname,
		Size:         int64(len(data)),
		SubmittedAt:  time.Now().UTC(),
	}
	rec, err = svc.repo.UpsertSubmission(ctx, rec)
	if err != nil {
		return SubmissionRecord{}, errors.Wrap(err, "recording submission")
	}
	return rec, nil
}

// Submissions lists the recorded submissions of an owned assignment.
func (svc *Service) Submissions(ctx context.Context, viewer Viewer, id string) ([]SubmissionRecord, error) {
	a, err := svc.getForViewer(ctx, viewer, id, true)
	if err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, a.ID)
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
