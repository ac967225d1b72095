package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type ApiRouter struct {
	payments *controllers.PaymentController
	apiKey   string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	payments := api.Group(constants.PaymentsGroup)

	// The gateway authenticates with the payload hash and retries on
	// failure, so the callback is neither key-guarded nor rate limited.
	payments.Post(constants.CallbackRoute, h.payments.HandleCallback)

	guard := middleware.APIKeyAuthMiddleware(h.apiKey)
	payments.Post(constants.CreatePaymentRoute, limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	}), guard, h.payments.HandleCreatePayment)
	payments.Get(constants.StatusRoute, guard, h.payments.HandleStatus)
}

func NewApiRouter(payments *controllers.PaymentController, apiKey string) *ApiRouter {
	return &ApiRouter{payments: payments, apiKey: apiKey}
}
