package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"
)

// HttpRouter serves the browser-facing pages and the health probe.
type HttpRouter struct{}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Browser redirects from the hosted payment page
	app.Get(constants.SuccessRoute, controllers.HandleSuccessPage)
	app.Get(constants.FailureRoute, controllers.HandleFailurePage)

	app.Get(constants.HealthRoute, controllers.HandleHealth)
}
