// Package application provides application initialization and dependency wiring.
// It selects the override store and cache backends, builds the merge engine, restart
// signaler, override service, handlers, routers and HTTP server, keeping the main
// packages focused on CLI parsing and orchestration.
package application
