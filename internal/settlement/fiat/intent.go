package fiat

import (
	"context"
	"errors"
	"fmt"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePaymentIntent 公司充值，先在三方建支付意图，再落 pending 记录
func (s *Service) CreatePaymentIntent(ctx context.Context, companyID int64, amount domain.Money, purpose, ip string) (*domain.PaymentIntent, error) {
	if err := s.checkAmount(amount); err != nil {
		return nil, err
	}
	if err := s.guard.AllowAction(ctx, risk.ActionPaymentIntent, companyID, ip); err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = "deposit"
	}

	fi, err := s.provider.CreateIntent(ctx, domain.FiatIntentRequest{
		Amount:         amount,
		Purpose:        purpose,
		CustomerRef:    fmt.Sprintf("company-%d", companyID),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		metrics.Op("payment_intent", err)
		logger.Error(ctx, "创建支付意图失败", zap.Int64("company_id", companyID), zap.String("amount", amount.String()), zap.Error(err))
		if errors.Is(err, domain.ErrProvider) {
			return nil, err
		}
		return nil, domain.ErrProvider.WithCause(err)
	}

	p := &domain.PaymentIntent{
		CompanyID:        companyID,
		ProviderIntentID: fi.ID,
		ClientSecret:     fi.ClientSecret,
		Amount:           amount.Amount,
		Currency:         amount.Currency,
		Purpose:          purpose,
		Status:           domain.IntentPending,
	}
	if err := s.store.CreateIntent(ctx, p); err != nil {
		return nil, err
	}
	metrics.Op("payment_intent", nil)
	logger.Info(ctx, "支付意图已创建",
		zap.Int64("company_id", companyID),
		zap.String("provider_intent_id", fi.ID),
		zap.String("amount", amount.String()),
	)
	return p, nil
}

// ConfirmPayment 以三方查询结果为准入账
// 同一个 intent 的并发确认合并成一次；入账和去重记录在同一个事务里
func (s *Service) ConfirmPayment(ctx context.Context, providerIntentID string) (*domain.PaymentIntent, error) {
	v, err, _ := s.confirmGroup.Do(providerIntentID, func() (interface{}, error) {
		return s.confirm(ctx, providerIntentID)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.PaymentIntent)
	return &p, nil
}

func (s *Service) confirm(ctx context.Context, providerIntentID string) (*domain.PaymentIntent, error) {
	p, err := s.store.GetIntentByProviderID(ctx, providerIntentID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.IntentSucceeded {
		return p, nil
	}

	fi, err := s.provider.RetrieveIntent(ctx, providerIntentID)
	if err != nil {
		return nil, err
	}

	switch fi.Status {
	case domain.IntentSucceeded:
	case domain.IntentFailed, domain.IntentCanceled:
		if _, err := s.store.TransitionIntent(ctx, providerIntentID, domain.IntentPending, fi.Status, fi.FailureReason, s.now()); err != nil {
			return nil, err
		}
		return nil, domain.ErrPaymentNotCompleted.WithMsg("payment %s is %s", providerIntentID, fi.Status)
	default:
		return nil, domain.ErrPaymentNotCompleted.WithMsg("payment %s is still %s", providerIntentID, fi.Status)
	}

	if fi.Amount.Amount != p.Amount {
		logger.Error(ctx, "支付金额与意图不一致",
			zap.String("provider_intent_id", providerIntentID),
			zap.Int64("expected", p.Amount),
			zap.Int64("got", fi.Amount.Amount),
		)
		return nil, domain.ErrValidation.WithMsg("amount mismatch for payment %s", providerIntentID)
	}

	eventID := fi.LatestChargeID
	if eventID == "" {
		eventID = fi.ID
	}
	credit := p.Money()
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		first, err := s.store.MarkProcessed(txCtx, providerName, eventID, "payment_confirm", providerIntentID)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		moved, err := s.store.TransitionIntent(txCtx, providerIntentID, domain.IntentPending, domain.IntentSucceeded, "", s.now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrConflict.WithMsg("payment %s is no longer pending", providerIntentID)
		}
		if err := s.store.Credit(txCtx, domain.OwnerCompany, p.CompanyID, credit); err != nil {
			return err
		}
		if err := s.store.AddTotals(txCtx, domain.OwnerCompany, p.CompanyID, 0, credit.Amount); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerCompany,
			OwnerID:     p.CompanyID,
			Type:        domain.TxDeposit,
			Amount:      credit.Amount,
			Currency:    credit.Currency,
			Status:      domain.TxCompleted,
			Reference:   "payment_intent:" + providerIntentID,
			Description: p.Purpose,
		})
	})
	metrics.Op("payment_confirm", err)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "充值已入账",
		zap.Int64("company_id", p.CompanyID),
		zap.String("provider_intent_id", providerIntentID),
		zap.String("amount", credit.String()),
	)
	return s.store.GetIntentByProviderID(ctx, providerIntentID)
}

// HandleWebhook 三方事件推送；验签失败不改任何状态
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*domain.PaymentIntent, error) {
	ev, err := s.provider.ParseWebhook(payload, signatureHeader)
	if err != nil {
		metrics.WebhookRejectTotal.WithLabelValues(providerName, "signature").Inc()
		logger.Warn(ctx, "支付回调验签失败", zap.Error(err))
		return nil, err
	}
	logger.Info(ctx, "收到支付回调", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.String("intent", ev.IntentID))

	switch ev.Type {
	case domain.FiatEventSucceeded:
		p, err := s.ConfirmPayment(ctx, ev.IntentID)
		if errors.Is(err, domain.ErrNotFound) {
			// 不是本系统创建的支付，确认收到即可
			return nil, nil
		}
		return p, err
	case domain.FiatEventFailed, domain.FiatEventCanceled:
		to := domain.IntentFailed
		if ev.Type == domain.FiatEventCanceled {
			to = domain.IntentCanceled
		}
		_, err := s.store.TransitionIntent(ctx, ev.IntentID, domain.IntentPending, to, ev.Reason, s.now())
		return nil, err
	default:
		return nil, nil
	}
}
