// Package logging builds the structured logger used by pacer.
//
// The logger is a *slog.Logger with a shared level that can be changed
// at runtime through SetLevel, which the config watcher uses to apply
// telemetry.logging.level without a restart.
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//	logger.Info("sent", "path", "/webhooks/1/secret") // path=/webhooks/1/***
//
// Call identifiers and request targets stored with WithCallID and
// WithRoute are added to every record logged with that context.
package logging
