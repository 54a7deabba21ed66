// Package module wires the guardian service
package module

import (
	"warden/internal/modkit"
	"warden/internal/services/audit"
	"warden/internal/services/guardian/domain"
	"warden/internal/services/guardian/repo"
	"warden/internal/services/guardian/service"
)

// Ports exposed by the guardian module
type Ports struct {
	Mutes domain.MutePort

	// Storage is shared with the sweeper so both see the same rows
	Storage domain.Storage
}

// Module bundles the guardian wiring
type Module struct {
	ports Ports
}

// New constructs the guardian module.
// Config keys are read under the GUARDIAN_ prefix.
func New(deps modkit.Deps, platform domain.Platform, rec audit.Recorder) *Module {
	cfg := deps.Cfg.Prefix("GUARDIAN_")
	storage := repo.NewPG(deps.PG)
	svc := service.New(
		platform,
		storage,
		rec,
		service.Config{
			MutedRoleID:     cfg.MayString("MUTED_ROLE_ID", ""),
			UnmuteChannelID: cfg.MayString("UNMUTE_CHANNEL_ID", ""),
		},
	)
	return &Module{ports: Ports{Mutes: svc, Storage: storage}}
}

// Name identifies the module
func (m *Module) Name() string { return "guardian" }

// Ports returns the module's exposed ports
func (m *Module) Ports() Ports { return m.ports }
