package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/load-profile-aggregation/internal/common"
	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
)

var validate = validator.New()

// DefaultQueryLayout is the date layout of query parameters unless ?layout= overrides it.
const DefaultQueryLayout = time.DateOnly

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *loadprofile.Service, maxRangeDays int) {
	v1 := app.Group("/api/v1")

	v1.Get("/loads/profile", func(c *fiber.Ctx) error {
		var req profileQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.GetLoadProfile(c.UserContext(), req.Date, req.ensureOptions())
		if err != nil {
			return toHTTPError(err)
		}

		return c.JSON(fiber.Map{
			"date":      req.Date.Format(time.DateOnly),
			"labelMode": service.LabelMode(),
			"circuits":  rec.Circuits,
			"rows":      rec.Rows,
		})
	})

	v1.Get("/loads", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if days := len(common.DayRange(req.Start, req.Stop)); maxRangeDays > 0 && days > maxRangeDays {
			return fiber.NewError(fiber.StatusBadRequest,
				"range of "+strconv.Itoa(days)+" days exceeds the limit of "+strconv.Itoa(maxRangeDays))
		}

		series, report := service.GetLoads(c.UserContext(), req.Start, req.Stop, loadprofile.RangeOptions{
			EnsureOptions: loadprofile.CachedOptions,
		})

		if req.Format == "csv" {
			c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
			c.Set("X-Report-Id", report.ID)
			c.Set("X-Failed-Days", strconv.Itoa(len(report.Failures)))
			return loadprofile.WriteCSV(c, series)
		}

		return c.JSON(fiber.Map{
			"report": report,
			"series": series,
		})
	})
}

// toHTTPError maps the error taxonomy onto status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, loadprofile.ErrFormat):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, loadprofile.ErrFetch), errors.Is(err, loadprofile.ErrArchive):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load profile")
	}
}

// profileQuery holds query parameters for the single-day endpoint.
type profileQuery struct {
	Date    time.Time
	Refresh bool
	Cache   bool
}

func (p *profileQuery) bind(c *fiber.Ctx) error {
	raw := c.Query("date")
	if raw == "" {
		return errors.New("date query parameter is required")
	}
	d, err := common.ParseDate(raw, c.Query("layout", DefaultQueryLayout))
	if err != nil {
		return err
	}
	p.Date = d
	p.Refresh = c.QueryBool("refresh", false)
	p.Cache = c.QueryBool("cache", true)
	return nil
}

func (p profileQuery) ensureOptions() loadprofile.EnsureOptions {
	return loadprofile.EnsureOptions{UseCache: p.Cache, ForceRefresh: p.Refresh}
}

// rangeQuery holds query parameters for the range endpoint.
type rangeQuery struct {
	Start  time.Time `validate:"required"`
	Stop   time.Time `validate:"required"`
	Format string    `validate:"omitempty,oneof=json csv"`
}

func (r *rangeQuery) bind(c *fiber.Ctx) error {
	startStr := c.Query("start")
	stopStr := c.Query("stop")
	if startStr == "" || stopStr == "" {
		return errors.New("start and stop query parameters are required")
	}

	layout := c.Query("layout", DefaultQueryLayout)
	start, err := common.ParseDate(startStr, layout)
	if err != nil {
		return err
	}
	stop, err := common.ParseDate(stopStr, layout)
	if err != nil {
		return err
	}

	r.Start = start
	r.Stop = stop
	r.Format = c.Query("format")
	return nil
}
