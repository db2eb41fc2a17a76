package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/retail-price-tracker/internal/prices"
	"github.com/i474232898/retail-price-tracker/internal/report"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *prices.Service) {
	app.Get("/", func(c *fiber.Ctx) error {
		doc, _, err := service.Report(c.UserContext())
		if err != nil {
			return toHTTPError(err, "failed to render report")
		}
		c.Type("html", "utf-8")
		return report.WriteHTML(c, doc)
	})

	v1 := app.Group("/api/v1")

	v1.Get("/groups", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"groups": service.Groups()})
	})

	v1.Get("/report", func(c *fiber.Ctx) error {
		doc, _, err := service.Report(c.UserContext())
		if err != nil {
			return toHTTPError(err, "failed to render report")
		}
		return c.JSON(doc)
	})

	v1.Get("/report/group", func(c *fiber.Ctx) error {
		q, err := parseGroupQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		section, trend, err := service.GroupReport(c.UserContext(), q.Group)
		if err != nil {
			return toHTTPError(err, "failed to aggregate group")
		}

		return c.JSON(fiber.Map{
			"section": section,
			"trend":   trend,
		})
	})

	v1.Get("/observations", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, err := service.History(c.UserContext(), req.Group.Group, req.From, req.To)
		if err != nil {
			return toHTTPError(err, "failed to fetch observations")
		}

		return c.JSON(fiber.Map{
			"group":        req.Group.Group,
			"from":         req.From,
			"to":           req.To,
			"observations": rows,
		})
	})

	v1.Post("/collect", func(c *fiber.Ctx) error {
		result, err := service.Collect(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "collection failed: "+err.Error())
		}
		return c.JSON(result)
	})
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error, fallback string) error {
	switch {
	case errors.Is(err, prices.ErrUnknownGroup):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, prices.ErrNoObservations):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, prices.ErrInvalidValue):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, fallback)
	}
}

// groupQuery holds the query parameter naming a group.
type groupQuery struct {
	Group string `validate:"required"`
}

func parseGroupQuery(c *fiber.Ctx) (groupQuery, error) {
	q := groupQuery{Group: c.Query("group")}

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// historyQuery holds query parameters for the observations endpoint.
type historyQuery struct {
	Group groupQuery
	From  time.Time `validate:"required"`
	To    time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	q, err := parseGroupQuery(c)
	if err != nil {
		return err
	}
	h.Group = q

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
