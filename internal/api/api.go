package api

import (
	"wahub/internal/config"
	"wahub/internal/manager"
	"wahub/internal/storage"
	"wahub/internal/tenant"
	"wahub/internal/webhook"
)

type API struct {
	TenantMgr *manager.TenantManager
	Storage   *storage.Storage
	Resolver  *tenant.Resolver
	Webhooks  *webhook.Handler
	Sender    *webhook.Sender
	Cfg       *config.Config
}

func NewAPI(tm *manager.TenantManager, db *storage.Storage, resolver *tenant.Resolver, wh *webhook.Handler, sender *webhook.Sender, cfg *config.Config) *API {
	return &API{
		TenantMgr: tm,
		Storage:   db,
		Resolver:  resolver,
		Webhooks:  wh,
		Sender:    sender,
		Cfg:       cfg,
	}
}
