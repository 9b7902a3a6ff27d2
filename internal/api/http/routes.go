package httpapi

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/balloon-wind-aggregation/internal/balloon"
)

var validate = validator.New()

// AggregateReader serves the cached aggregate.
type AggregateReader interface {
	GetCached(ctx context.Context) balloon.Aggregate
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service AggregateReader) {
	all := func(c *fiber.Ctx) error {
		return c.JSON(service.GetCached(c.UserContext()))
	}

	// Path consumed by the map frontend.
	app.Get("/data", all)

	v1 := app.Group("/api/v1")
	v1.Get("/balloons", all)

	v1.Get("/balloons/:hour", func(c *fiber.Ctx) error {
		q, err := parseHourParam(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snap := service.GetCached(c.UserContext())[q.Hour]
		if snap.Failed() {
			return fiber.NewError(fiber.StatusBadGateway, snap.Err.Error())
		}

		return c.JSON(fiber.Map{
			"hour":      q.Hour,
			"skipped":   snap.Skipped,
			"positions": snap,
		})
	})
}

// hourParam holds the hour-offset path parameter.
type hourParam struct {
	Hour int `validate:"min=0,max=23"`
}

func parseHourParam(c *fiber.Ctx) (hourParam, error) {
	var p hourParam

	h, err := c.ParamsInt("hour")
	if err != nil {
		return p, err
	}
	p.Hour = h

	if err := validate.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}
