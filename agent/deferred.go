package agent

import "context"

// Initializer connects a deferred tool source.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// DeferredTools returns a before-run callback that initializes init and then
// refreshes the agent's tools. It blocks until the attempt finishes; the
// initializer bounds how long that takes. Failures are logged and the agent
// continues with whatever tools it has, so the callback never returns an
// error.
func DeferredTools(init Initializer) BeforeRunCallback {
	return func(ctx context.Context, a *Agent) error {
		if err := init.Initialize(ctx); err != nil {
			a.logger.Warn("remote tools unavailable, continuing without them", "error", err)
		}
		a.RefreshTools()
		a.logger.Info("agent tools ready", "tools", len(a.Tools()))
		return nil
	}
}
