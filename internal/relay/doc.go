// Package relay is the HTTP face of the gateway. It accepts chat requests,
// streams the upstream output to the client as server-sent events, mirrors
// every chunk into the session store and publishes it for watchers.
//
// A fresh request only commits its 200 response once a candidate model has
// produced output, so failures before that point are reported with a regular
// HTTP status. A resume with earlier output commits immediately and replays that
// output first; anything that fails later is reported in-band as an error event.
//
// Each stream id can have at most one generation in flight. A second request for
// an id that is still streaming is rejected with 409; the same bookkeeping lets
// POST /v1/chat/streams/:id/cancel stop a stream from another connection.
package relay
