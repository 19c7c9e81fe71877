// Package http provides the echo handlers and middleware for the court board API.
//
// The router exposes the following endpoints:
//   - GET /health: liveness probe returning "ok".
//   - GET /board: classification of every court, the offerable set, next-free
//     instants, waitlist entries with estimated waits and current blocks.
//   - GET /courts/offerable?mode=strict|lookahead: courts that may be offered now.
//   - POST /courts/{id}/assign: body {"players":[{"name","id"}],"guests",
//     "duration_minutes","waitlist_entry_id"}. Duration defaults by group size.
//   - POST /courts/{id}/clear: body {"reason"}; archives the current session.
//   - GET /waitlist, POST /waitlist, DELETE /waitlist/{id}: the queue of
//     waiting groups.
//   - POST /estimate: the wait-time estimator on caller supplied data.
//   - GET /ws: websocket stream of {"type":"snapshot"|"blocks","data":...}.
//   - POST /admin/login: body {"passcode"}; returns {"token","expires_at"}.
//   - /admin/... (Bearer token): priority override assignment, forced
//     waitlist joins (POST /admin/waitlist with "force"), wet markers,
//     blocks, templates, recurrences, auto-clear and the session history log.
//
// Rejections carry {"error_code","message"} where error_code is the stable
// reason code; policy conflicts answer 409, invalid input 422, unknown ids
// 404 and refused writes 503.
package http
