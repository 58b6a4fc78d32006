package mysql

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm/clause"
)

// ========== PaymentIntentRepo / EventRepo 接口实现 ==========

func (r *Repo) CreateIntent(ctx context.Context, p *domain.PaymentIntent) error {
	if err := r.conn(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("payment intent %s already exists", p.ProviderIntentID)
		}
		return xerr.Wrap(err, codes.Internal, "create payment intent")
	}
	return nil
}

func (r *Repo) GetIntentByProviderID(ctx context.Context, providerIntentID string) (*domain.PaymentIntent, error) {
	var p domain.PaymentIntent
	err := r.conn(ctx).Where("provider_intent_id = ?", providerIntentID).First(&p).Error
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("payment intent %s", providerIntentID)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get payment intent")
	}
	return &p, nil
}

// TransitionIntent 带状态条件的更新，返回是否真正迁移
func (r *Repo) TransitionIntent(ctx context.Context, providerIntentID string, from, to domain.IntentStatus, reason string, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if to == domain.IntentSucceeded {
		updates["succeeded_at"] = at
	}
	res := r.conn(ctx).Model(&domain.PaymentIntent{}).
		Where("provider_intent_id = ? AND status = ?", providerIntentID, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update payment intent")
	}
	return res.RowsAffected == 1, nil
}

// MarkProcessed 插入去重记录，冲突时什么都不做 (INSERT IGNORE 语义)
func (r *Repo) MarkProcessed(ctx context.Context, provider, externalID, kind, reference string) (bool, error) {
	ev := domain.ProcessedEvent{
		Provider:   provider,
		ExternalID: externalID,
		Kind:       kind,
		Reference:  reference,
	}
	res := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&ev)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return false, nil
		}
		return false, xerr.Wrap(res.Error, codes.Internal, "mark event processed")
	}
	return res.RowsAffected == 1, nil
}
