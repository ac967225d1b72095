package constants

// Route constants
const (
	APIRoute      = "/api"
	PaymentsGroup = "/payments"

	CreatePaymentRoute = "/create"
	CallbackRoute      = "/callback"
	StatusRoute        = "/status/:transactionId"

	SuccessRoute = "/success"
	FailureRoute = "/failure"
	HealthRoute  = "/health"

	MetricsRoute       = "/metrics"
	// Callback tallies, same credentials as MetricsRoute
	CallbackStatsRoute = "/metrics/callbacks"
)
