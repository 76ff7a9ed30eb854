// Package logger provides a context-aware factory around log/slog.
//
// New builds a *slog.Logger from functional options: output format (json or
// text), minimum level, static attributes applied to every record, and
// ContextExtractor callbacks that pull request-scoped values (like a request
// id) out of the context on every log call.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Environment, "coachkit"),
//	    logger.WithContextExtractors(requestIDExtractor),
//	)
//	logger.SetAsDefault(log)
//
// Helper constructors in attr.go (Error, UserID, PlanID, Action, ...) keep
// attribute naming consistent across services.
package logger
