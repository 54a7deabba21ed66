// Package module wires the ticket service
package module

import (
	"warden/internal/modkit"
	"warden/internal/services/audit"
	"warden/internal/services/tickets/domain"
	"warden/internal/services/tickets/service"
)

// Ports exposed by the ticket module
type Ports struct {
	Tickets domain.Port
}

// Module bundles the ticket wiring
type Module struct {
	ports Ports
}

// New constructs the ticket module.
// Config keys are read under the TICKETS_ prefix.
func New(deps modkit.Deps, platform domain.Platform, rec audit.Recorder) *Module {
	cfg := deps.Cfg.Prefix("TICKETS_")
	svc := service.New(platform, rec, service.Config{
		CategoryID:  cfg.MayString("CATEGORY_ID", ""),
		StaffRoleID: cfg.MayString("STAFF_ROLE_ID", ""),
		CloseGrace:  cfg.MayDuration("CLOSE_GRACE", 0),
	})
	return &Module{ports: Ports{Tickets: svc}}
}

// Name identifies the module
func (m *Module) Name() string { return "tickets" }

// Ports returns the module's exposed ports
func (m *Module) Ports() Ports { return m.ports }
