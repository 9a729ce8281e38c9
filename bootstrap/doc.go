// Package bootstrap assembles the gateway from its configuration and runs
// it as a set of lifecycle-managed components.
//
// # Quick Start
//
//	cfg, _ := config.Load(configFile, envFile)
//	app, err := bootstrap.New(cfg, bootstrap.WithStreams(streams))
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
//
// The model component starts first: device selection, model load with CPU
// fallback and warm-up all finish before the HTTP listener opens. Shutdown
// runs in reverse, so in-flight requests drain before the engine closes.
package bootstrap
