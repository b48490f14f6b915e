// Package bootstrap wires the chat server together: configuration, logger,
// database connector, websocket hub and HTTP API, plus the startup and
// shutdown sequence around them.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := app.Start(ctx); err != nil {
//	    app.Shutdown()
//	    log.Fatal(err)
//	}
//
//	err = app.WaitForShutdown()
//	app.Shutdown()
package bootstrap
