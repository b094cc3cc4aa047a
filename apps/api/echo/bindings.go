package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// optionalBool binds the query param name to *dest, leaving it nil when absent.
func optionalBool(ctx echo.Context, b *echo.ValueBinder, name string, dest **bool) {
	if ctx.QueryParam(name) == "" {
		return
	}
	var v bool
	b.Bool(name, &v)
	*dest = &v
}

func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	filter := new(user.QueryFilter)
	b := echo.QueryParamsBinder(ctx).
		String("search", &filter.Search).
		Strings("role", &filter.Roles).
		String("tenant_id", &filter.TenantID).
		Time("created_from", &filter.CreatedFrom, time.RFC3339).
		Time("created_to", &filter.CreatedTo, time.RFC3339)
	optionalBool(ctx, b, "is_active", &filter.IsActive)
	if err := b.BindError(); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindTenantFilter(ctx echo.Context) (*tenant.QueryFilter, error) {
	filter := new(tenant.QueryFilter)
	b := echo.QueryParamsBinder(ctx).
		String("search", &filter.Search).
		String("agency_id", &filter.AgencyID)
	optionalBool(ctx, b, "is_active", &filter.IsActive)
	if err := b.BindError(); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindProgramFilter(ctx echo.Context) (*program.QueryFilter, error) {
	filter := new(program.QueryFilter)
	err := echo.QueryParamsBinder(ctx).
		String("search", &filter.Search).
		String("status", &filter.Status).
		String("tenant_id", &filter.TenantID).
		BindError()
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindEnrollmentFilter(ctx echo.Context) (*enrollment.QueryFilter, error) {
	filter := new(enrollment.QueryFilter)
	err := echo.QueryParamsBinder(ctx).
		String("program_id", &filter.ProgramID).
		String("user_id", &filter.UserID).
		String("status", &filter.Status).
		BindError()
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindAssessmentFilter(ctx echo.Context) (*assessment.QueryFilter, error) {
	filter := new(assessment.QueryFilter)
	err := echo.QueryParamsBinder(ctx).
		String("status", &filter.Status).
		String("kind", &filter.Kind).
		String("subject_id", &filter.SubjectID).
		String("program_id", &filter.ProgramID).
		BindError()
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindEngagementFilter(ctx echo.Context) (*coaching.QueryFilter, error) {
	filter := new(coaching.QueryFilter)
	err := echo.QueryParamsBinder(ctx).
		String("status", &filter.Status).
		String("kind", &filter.Kind).
		String("coach_id", &filter.CoachID).
		String("learner_id", &filter.LearnerID).
		BindError()
	if err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindNotificationFilter(ctx echo.Context) (notification.QueryFilter, error) {
	var filter notification.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		Bool("unread", &filter.Unread).
		Int("limit", &filter.Limit).
		BindError()
	if err != nil {
		return notification.QueryFilter{}, err
	}
	filter.Clean()
	return filter, nil
}
