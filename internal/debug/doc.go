// Package debug implements the debug session controller.
//
// A Controller launches a target runtime, opens the control channel it
// connects back to, and keeps the editor's view of execution in step with
// the target: it answers the target's Wait with Continue, turns Break into
// a paused state plus navigation to the break location, and reports
// exceptions, results and unknown messages as notifications.
//
// # Serialization
//
// Every mutation of session state happens on one goroutine owned by the
// Controller. Public operations, channel arrivals and process exits are
// queued to it. Asynchronous events carry the epoch of the session that
// produced them and are dropped when that session is gone, so nothing
// from a stopped session is acted upon after Stop returns.
//
// # Notifications
//
// State changes are published on an event.Bus under the debug.* topics
// (see TopicSessionStarted and friends). A dedicated goroutine delivers
// them in order, so listeners may call back into the Controller.
//
// # Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(debug.TopicSessionPaused, func(e event.Event) {
//	    p := e.Payload.(debug.PausedEvent)
//	    fmt.Printf("paused at %s:%d\n", p.File.Rel, p.Line)
//	})
//
//	ctrl := debug.NewController(cfg, debug.WithBus(bus), debug.WithResolver(ws))
//	defer ctrl.Close()
//
//	if _, err := ctrl.Start(ctx, debug.Target{Dir: ws.Root()}); err != nil {
//	    return err
//	}
package debug
