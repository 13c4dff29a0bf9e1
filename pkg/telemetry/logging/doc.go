// Package logging builds the process slog.Logger.
//
// New returns a JSON or text logger whose handler adds request-scoped
// fields stored in the context (request id, project, user, compile id) to
// every record logged with a *Context method, and masks values of
// sensitive keys such as cookies and session secrets.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	slog.SetDefault(logger)
//
//	ctx = logging.WithProjectID(ctx, projectID)
//	slog.InfoContext(ctx, "compile started") // includes project_id
package logging
