package assignment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kazi/core"
)

var (
	// custom validation tags & texts
	storageTypeTag  = "storage_type"
	storageTypeText = "storage type must be one of: filesystem, git"

	storageFieldTag  = "storage_field"
	storageFieldText = "this field does not apply to the selected storage type"

	requiredTag = "required"
)

// InitValidators registers the assignment validators on the app validator.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(storageTypeTag, storageTypeValidation)
	core.RegisterCustomTranslation(validate, translator, storageTypeTag, storageTypeText)
	core.RegisterCustomTranslation(validate, translator, storageFieldTag, storageFieldText)

	validate.RegisterStructValidation(newAssignmentStructValidation, NewAssignment{})
}

// storageTypeValidation only allows known storage types.
func storageTypeValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, st := range StorageTypes {
		if val == st {
			return true
		}
	}
	return false
}

// newAssignmentStructValidation enforces per-storage-type field requiredness:
// all problems are reported at once, never just the first.
func newAssignmentStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewAssignment)
	if !ok {
		return
	}

	fields := map[string]struct {
		goName string
		value  string
	}{
		"git_url":    {"GitURL", na.GitURL},
		"git_branch": {"GitBranch", na.GitBranch},
		"base_path":  {"BasePath", na.BasePath},
	}

	required := make(map[string]bool)
	for _, fld := range RequiredFields(na.StorageType) {
		required[fld] = true
	}

	for name, fld := range fields {
		switch {
		case required[name] && fld.value == "":
			sl.ReportError(fld.value, name, fld.goName, requiredTag, "")
		case !required[name] && fld.value != "" && knownField(name, na.StorageType):
			sl.ReportError(fld.value, name, fld.goName, storageFieldTag, "")
		}
	}
}

// knownField reports whether name belongs to a storage mode other than
// storageType; fields of an unknown storage type are left to the
// storage_type tag to report.
func knownField(name, storageType string) bool {
	switch storageType {
	case StorageGit, StorageFilesystem:
		return true
	}
	return false
}

// Validate runs input validation; the resulting validator.ValidationErrors
// aggregate every field problem and are translated by the API layer.
func (na NewAssignment) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

func (ua UpdateAssignment) Validate(validate *validator.Validate) error {
	return validate.Struct(ua)
}
