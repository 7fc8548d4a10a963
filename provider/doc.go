// Package provider groups pooled clients for hosted model APIs.
//
// Every provider package exposes the same shape: a Client owning its own
// HTTP transport, a Close that drops idle connections, a pool.Factory that
// builds clients and a NewPool helper that registers a pool of them with a
// pool.Manager. Keeping one transport per pooled client means a retired
// client releases its sockets instead of leaking them into a shared
// transport.
package provider
