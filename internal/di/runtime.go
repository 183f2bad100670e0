package di

import (
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/services"
	"pvz/internal/structures"
)

// Runtime is the scan stack without the HTTP server, used by one-shot CLI
// commands.
type Runtime struct {
	Config  *structures.Config
	Logger  providers.Logger
	Pool    *nostr.Pool
	Service services.ScanServiceInterface
}

func (r *Runtime) Close() {
	r.Pool.Close()
	r.Logger.Close()
}
