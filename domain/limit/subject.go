package limit

// Application is a provisioned application subject: its plan's limits plus
// the metric names needed to render reports.
type Application struct {
	ID       string
	PlanID   string
	PlanName string
	Metrics  map[string]string // metric id -> name
	Limits   []UsageLimit
}

// MetricName resolves a metric id to its display name.
func (a *Application) MetricName(metricID string) string {
	return a.Metrics[metricID]
}

// UsageLimits returns the limits of the application's plan.
func (a *Application) UsageLimits() []UsageLimit {
	return a.Limits
}

// User is a provisioned end-user subject with its own plan and limits.
type User struct {
	Username string
	PlanName string
	Metrics  map[string]string
	Limits   []UsageLimit
}

// MetricName resolves a metric id to its display name.
func (u *User) MetricName(metricID string) string {
	return u.Metrics[metricID]
}

// UsageLimits returns the limits of the user's plan.
func (u *User) UsageLimits() []UsageLimit {
	return u.Limits
}

// Ensure both subjects satisfy the capability.
var (
	_ Subject = (*Application)(nil)
	_ Subject = (*User)(nil)
)
