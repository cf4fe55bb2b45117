// Package server serves the goal dashboard over HTTP.
//
// Pages are rendered on the server from the same view model the terminal
// dashboard uses. The browser receives change notifications over SSE and
// re-fetches the dashboard partial; scripts can instead follow the raw
// event log with catch-up reads, long-polling, SSE or a WebSocket.
//
// # Endpoints
//
//   - GET / - Dashboard page (or the login form when a password is set)
//   - GET /partials/dashboard - Dashboard panels only
//   - GET /static/* - Scripts and styles
//   - POST /api/runs - Start a run for a goal
//   - POST /api/runs/stop - Stop the active run after its current iteration
//   - GET /api/state - Current controller snapshot as JSON
//   - GET /api/events - Event log (offset, live=long-poll|sse)
//   - GET /ws - Event log over WebSocket
//   - GET /api/runs/history[/{id}[/report]] - Finished runs
//   - POST /auth, POST /logout - Password login
//
// # Authentication
//
// When server.password_hash is configured every endpoint except the page
// shell, static files and /auth requires a token, sent either as a Bearer
// header or in the goalboard_token cookie that /auth sets. Login attempts
// are rate limited per client IP.
package server
