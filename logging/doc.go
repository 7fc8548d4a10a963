// Package logging defines the Logger contract shared by resourcekit components
// and a slog based RuntimeLogger.
//
// Components only depend on Logger (Debug, Info, Warn, Error with key/value
// pairs), which *slog.Logger already satisfies. RuntimeLogger adds derived
// loggers tagged with a component, a pool or arbitrary attributes, and fixed
// records for acquisitions, cleanup attempts and initializations. Pools, the
// cleanup scheduler and the initializer emit those records whenever the
// injected logger implements AcquireLogger, CleanupLogger or
// InitializationLogger.
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	rt, err := resourcekit.New(func(o *resourcekit.Options) { o.Logger = logger })
//
// NoOpLogger is the default everywhere a logger is optional.
package logging
