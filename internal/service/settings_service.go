package service

import (
	"context"
	"sync"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"

	"go.uber.org/zap"
)

// SettingsService 运营配置，全局唯一
type SettingsService struct {
	mu        sync.RWMutex
	cfg       model.PlatformConfig
	directory *SessionService
	infra     Infra
}

func NewSettingsService(directory *SessionService, infra Infra) *SettingsService {
	return &SettingsService{
		cfg:       model.DefaultPlatformConfig(),
		directory: directory,
		infra:     infra.withDefaults(),
	}
}

func (s *SettingsService) Get() model.PlatformConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Restore 快照里的配置不合法时退回默认配置
func (s *SettingsService) Restore(cfg model.PlatformConfig) {
	if err := validateConfig(cfg); err != nil {
		s.infra.Logger.Warn("快照中的运营配置不合法，使用默认配置", zap.Error(err))
		cfg = model.DefaultPlatformConfig()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Update 只覆盖 patch 中非空的字段
func (s *SettingsService) Update(ctx context.Context, operatorID string, patch model.SettingsPatch) (model.PlatformConfig, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return model.PlatformConfig{}, err
	}

	s.mu.Lock()
	next := patch.Apply(s.cfg)
	if err := validateConfig(next); err != nil {
		s.mu.Unlock()
		return model.PlatformConfig{}, err
	}
	s.cfg = next
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordConfig)
	s.infra.Logger.Info("运营配置已更新",
		zap.String("operator_id", operatorID),
		zap.Int("bias_percentage", next.BiasPercentage),
		zap.Bool("feed_simulation_enabled", next.FeedSimulationEnabled),
	)
	return next, nil
}

func validateConfig(cfg model.PlatformConfig) error {
	if cfg.BiasPercentage < 0 || cfg.BiasPercentage > 100 {
		return apperr.Newf(apperr.KindValidation, "胜率偏置必须在 0-100 之间: %d", cfg.BiasPercentage)
	}
	if cfg.MinDeposit < 0 || cfg.MinWithdraw < 0 {
		return apperr.New(apperr.KindValidation, "最低金额不能为负数")
	}
	if cfg.MinBet < model.MinBetFloor {
		return apperr.Newf(apperr.KindValidation, "最低下注不能小于 %d", model.MinBetFloor)
	}
	return nil
}
