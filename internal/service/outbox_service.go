package service

import (
	"context"
	"strings"

	"saghat/internal/model"
	"saghat/internal/repository"

	"gorm.io/gorm"
)

// OutboxService 供运维查看投递失败或积压的消息
type OutboxService struct {
	outboxRepo *repository.OutboxRepository
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// List 按状态列出消息，status 不区分大小写，limit 超出范围时取 20
func (s *OutboxService) List(ctx context.Context, status string, limit int) ([]*model.OutboxMessage, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case model.OutboxStatusPending, model.OutboxStatusSent, model.OutboxStatusFailed:
	default:
		return nil, ErrInvalidOutboxStatus
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.outboxRepo.ListByStatus(ctx, status, limit)
}
