// Package bootstrap resolves the portal binary's configuration and wires the
// runtime: Redis, the auth backend, the session Store and Gate, the catalog
// and the HTTP server.
//
// Configuration layers, lowest priority first: [DefaultConfig], a YAML file,
// a .env file and DOCPORTAL_* environment variables.
package bootstrap
