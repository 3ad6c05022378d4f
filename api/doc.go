// Package api defines the request and response payloads of the LocalPilot
// HTTP API.
//
// # API Overview
//
// LocalPilot exposes:
//   - Browser automation: start the demo session, run a natural-language
//     prompt, stop the session, query status
//   - Local inference: server status, loaded models, single-turn prompts,
//     endpoint discovery
//   - Enhanced-backend diagnostics
//   - Run history and a websocket stream of live run output
//   - Health monitoring and Prometheus metrics (separate port)
//
// # Authentication
//
// When API keys are configured, endpoints other than health and version
// require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret or public key is configured, a Bearer token is required
// instead.
//
// # Base URL
//
//	http://localhost:8080
package api
