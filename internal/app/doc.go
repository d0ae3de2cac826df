// Package app assembles the engine: it builds the component graph from
// configuration, loads workflow definitions and plugins, and runs every
// long-lived component under one lifecycle with graceful shutdown.
package app
