package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/kazi/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the "ordering" query param: comma-separated fields, "-" prefix
// for descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	DestroyMultipleRequest struct {
		IDs     []string `query:"id"`
		Confirm bool     `query:"confirm"`
	}

	// SubmissionRequest carries a student upload; Content is base64 in JSON.
	SubmissionRequest struct {
		Round    string `json:"round"`
		FileName string `json:"file_name" validate:"required"`
		Content  []byte `json:"content" validate:"required"`
	}

	StructureResponse struct {
		Entries interface{} `json:"entries"`
	}

	RoundsResponse struct {
		Rounds []string `json:"rounds"`
	}
)

func (sr *SubmissionRequest) Validate(validate *validator.Validate) error {
	sr.FileName = core.CleanString(sr.FileName)
	sr.Round = core.CleanString(sr.Round)
	return validate.Struct(sr)
}
