// Package httpconn is an xclient connector performing a single HTTP
// exchange per Connect.
//
// Connector name: "http"
//
// Config keys:
// - timeout: whole-exchange timeout (default 30s)
// - user_agent: default User-Agent header
// - max_body_bytes: response body cap (default 10MiB, 0 = unlimited)
//
// Actions:
// - Connected (*Response): the exchange completed and the body was read.
// - Disconnected (error): transport failure, cancellation or body read failure.
// - xcaller.Exception: fired before Disconnected when the body could not be read.
package httpconn
