// Package modkit provides module wiring and core deps
package modkit

import (
	"warden/internal/platform/config"
	"warden/internal/platform/logger"
	"warden/internal/platform/store"
)

// Deps holds core dependencies passed to service modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  store.TxRunner
	CH  store.Clickhouse
}
