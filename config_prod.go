//go:build !debug
// +build !debug

package main

// Production build defaults.
const (
	IsDebugBuild      = false
	DefaultDriverKind = "real"
	DefaultLogLevel   = "info"
)
