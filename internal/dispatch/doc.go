// Package dispatch serves a fixed catalog of tools over JSON-RPC 2.0.
//
// A Server answers five request kinds: initialize, notifications/initialized,
// ping, tools/list and tools/call. Everything else is rejected with
// "unsupported request: <method>" (-32601).
//
// Name resolution is the only check the core always enforces: calling a name
// that is not in the catalog fails with *UnknownToolError and nothing runs.
// Argument checking against the descriptor schema is opt-in (WithValidation).
// Tools report their own failures as results with isError set, so a bad
// argument never becomes a protocol error.
//
// Serve runs the newline-delimited stdio transport: one JSON object per line
// in, one per line out. Requests are independent and a malformed line only
// produces an error response.
package dispatch
