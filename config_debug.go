//go:build debug
// +build debug

package main

// Debug build defaults: a more permissive driver/logging posture for
// local development (the MQTT topic namespace is fixed regardless of
// build, so only driver kind and log verbosity vary here).
const (
	IsDebugBuild      = true
	DefaultDriverKind = "mock"
	DefaultLogLevel   = "debug"
)
