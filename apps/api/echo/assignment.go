package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/assignment"
)

type assignmentApi struct {
	svc        *assignment.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerAssignmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *assignment.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := assignmentApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	ag := g.Group("/assignments", jwt)

	ag.POST("", api.create, teacherMiddleware())
	ag.GET("", api.query)
	ag.DELETE("", api.destroyMultiple, teacherMiddleware())

	// detail endpoints
	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherMiddleware())
	dg.GET("/structure", api.structure)
	dg.GET("/rounds", api.rounds)
	dg.POST("/submissions", api.submit)
	dg.GET("/submissions", api.submissions, teacherMiddleware())
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Create(ctx.Request().Context(), viewer, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) query(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	filter := new(assignment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assignment.Assignment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings

	assignments, err := api.svc.Filter(ctx.Request().Context(), viewer, *filter)
	if err != nil {
		return errors.Wrap(err, "filtering assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.GetByID(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), viewer, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroyMultiple(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), viewer, query.IDs, query.Confirm); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) structure(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	entries, err := api.svc.GetStructure(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, StructureResponse{Entries: entries})
}

func (api *assignmentApi) rounds(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	rounds, err := api.svc.ListRounds(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return err
	}
	if rounds == nil {
		rounds = []string{}
	}
	return ctx.JSON(http.StatusOK, RoundsResponse{Rounds: rounds})
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	var data SubmissionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmissionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.SubmitFile(ctx.Request().Context(), viewer, ctx.Param("id"), data.Round, data.FileName, data.Content)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *assignmentApi) submissions(ctx echo.Context) error {
	viewer, err := getContextViewer(ctx)
	if err != nil {
		return err
	}

	subs, err := api.svc.Submissions(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []assignment.SubmissionRecord{}
	}
	return ctx.JSON(http.StatusOK, subs)
}
