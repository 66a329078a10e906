// Package main is the entry point for the arc-dbboot database bootstrap
// service. It gates the Postgres version, activates and verifies the vector
// extension under an advisory lock, rebuilds stale vector indexes and applies
// schema migrations.
package main

// buildVersion is overridden at link time with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	Execute()
}
