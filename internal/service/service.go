package service

import (
	"github.com/xiaot623/gogo/crewtrace/internal/config"
	"github.com/xiaot623/gogo/crewtrace/internal/policy"
	"github.com/xiaot623/gogo/crewtrace/internal/repository"
)

type Service struct {
	store        repository.Store
	config       *config.Config
	policyEngine *policy.Engine
}

func New(store repository.Store, cfg *config.Config, policyEngine *policy.Engine) *Service {
	return &Service{
		store:        store,
		config:       cfg,
		policyEngine: policyEngine,
	}
}
