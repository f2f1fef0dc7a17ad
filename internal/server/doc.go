// Package server provides the motion-builder web app that the launcher
// starts around a robot handle.
//
// The app serves an embedded page for recording, saving and replaying
// robot moves, and exposes the small JSON API it uses. Without a robot it
// runs in demo mode: playback is simulated and recording is refused.
//
// # Endpoints
//
//   - GET / - embedded web assets
//   - GET /api/status - mode, robot, motors, queue and URL
//   - GET, POST /api/moves - list and save moves
//   - GET, DELETE /api/moves/{id} - fetch or delete a move
//   - POST /api/moves/{id}/play - play a move, throttled per client IP
//   - POST /api/record/start, /api/record/stop - record from the robot
//   - GET /ws - websocket stream of positions and playback events
//   - GET /qr.png - QR code of the browser URL
//   - GET /metrics - Prometheus metrics
//   - GET /health - liveness
//
// # Lifecycle
//
// NewApp builds an app; Queue enables the single-worker play queue;
// Launch binds the first free port from LaunchOptions.Port and serves in
// the background; Close shuts everything down once, falling back to a
// forced close when graceful shutdown exceeds its timeout.
package server
