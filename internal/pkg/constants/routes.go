package constants

// Static route constants
const (
	APIRoute   = "/api"
	APIv1Route = "/api/v1"

	RegisterRoute = "/api/v1/auth/register"
	LoginRoute    = "/api/v1/auth/login"
	LogoutRoute   = "/api/v1/auth/logout"

	PlansRoute        = "/api/v1/plans"
	SubscriptionRoute = "/api/v1/subscription"
	UsageRoute        = "/api/v1/subscription/usage"

	DocumentsRoute = "/api/v1/documents"
	QuestionsRoute = "/api/v1/questions"

	// Billing provider webhooks are mounted outside /api/v1 so the rate
	// limiter never drops a provider retry.
	PayPalWebhookRoute = "/webhooks/paypal"
	CronResetRoute     = "/cron/usage-reset"
)
