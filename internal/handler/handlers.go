package handler

import (
	"leadintake-service/internal/dealflow"
	"leadintake-service/internal/viewcache"

	"gorm.io/gorm"
)

var (
	flow  *dealflow.Orchestrator
	db    *gorm.DB
	views *viewcache.Cache
)

// Init wires the handlers to their collaborators. Must be called before any
// route is served.
func Init(orchestrator *dealflow.Orchestrator, database *gorm.DB, viewCache *viewcache.Cache) {
	flow = orchestrator
	db = database
	views = viewCache
}
