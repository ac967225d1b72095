package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the public pages first, then the payment API.
func InstallRouter(app *fiber.App, payments *controllers.PaymentController, apiKey string) {
	setup(app, NewHttpRouter(), NewApiRouter(payments, apiKey))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
