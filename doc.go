// Package drainhub provides the core of a real-time notification server with
// coordinated graceful shutdown: a [Registry] of live sessions that gates
// admission, a [Broadcaster] that periodically fans notifications out to every
// registered session, and a [Coordinator] that drives the timed
// draining/forcing state machine once the process is told to stop.
//
// One Registry/Broadcaster/Coordinator triple serves one process; there is no
// cross-process coordination.
//
// On shutdown the Coordinator stops registry admission, cancels the
// broadcaster, and polls the registry until every session disconnects
// naturally or the hard deadline elapses, at which point the remaining
// sessions are force-closed. Completion is reported through
// [Coordinator.Done] so the host may terminate the process.
//
// Example wiring:
//
//	func main() {
//		logger := logrus.New()
//
//		registry := drainhub.NewRegistry()
//		registry.SetLogger(logger)
//
//		broadcaster := drainhub.NewBroadcaster(registry, 10*time.Second)
//		broadcaster.SetLogger(logger)
//		bctx, stopBroadcast := context.WithCancel(context.Background())
//		go broadcaster.Run(bctx)
//
//		coordinator := drainhub.NewCoordinator(registry, stopBroadcast,
//			30*time.Minute, 5*time.Second)
//		coordinator.SetLogger(logger)
//
//		// ... accept connections, wrap each one in a Session
//		// implementation and Register it ...
//
//		// Wait for os.Signal to occur, then drain and exit:
//		appCtx, cancel := drainhub.WithSignals(context.Background(),
//			syscall.SIGINT, syscall.SIGTERM)
//		defer cancel()
//
//		coordinator.Wait(appCtx)
//	}
//
// Sessions are transport-specific; the WebSocket implementation lives in
// internal/wsgate and the runnable server in cmd/drainhubd. Time is abstracted
// behind the [Clock] interface so deadlines and poll intervals can be
// simulated in tests.
package drainhub
