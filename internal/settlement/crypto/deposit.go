package crypto

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateProviderOrder 公司通过托管收银台充值
// 先落 pending 订单再请求三方，三方失败把订单置为 failed
func (s *Service) CreateProviderOrder(ctx context.Context, companyID int64, amount domain.Money, purpose, ip string) (*domain.CryptoPaymentIntent, error) {
	if _, err := s.ledgerAmount(amount); err != nil {
		return nil, err
	}
	if err := s.guard.AllowAction(ctx, risk.ActionPaymentIntent, companyID, ip); err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = "deposit"
	}

	now := s.now()
	expireAt := now.Add(s.cfg.OrderTTL)
	intent := &domain.CryptoPaymentIntent{
		CompanyID:       companyID,
		MerchantOrderID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:          amount.Amount,
		Currency:        amount.Currency,
		Purpose:         purpose,
		Status:          domain.CryptoIntentPending,
		ExpiresAt:       &expireAt,
	}
	if err := s.store.CreateCryptoIntent(ctx, intent); err != nil {
		return nil, err
	}

	order, err := s.provider.CreateOrder(ctx, domain.CryptoOrderRequest{
		MerchantOrderID: intent.MerchantOrderID,
		Amount:          amount,
		Purpose:         purpose,
		ExpireAt:        expireAt,
	})
	if err != nil {
		logger.Error(ctx, "收银台下单失败",
			zap.Int64("company_id", companyID),
			zap.String("merchant_order_id", intent.MerchantOrderID),
			zap.Error(err),
		)
		if _, uerr := s.store.TransitionCryptoIntent(ctx, intent.MerchantOrderID, domain.CryptoIntentPending, domain.CryptoIntentFailed,
			domain.CryptoIntentUpdate{FailureReason: truncate(err.Error(), 255), At: s.now()}); uerr != nil {
			logger.Error(ctx, "标记订单失败状态出错", zap.String("merchant_order_id", intent.MerchantOrderID), zap.Error(uerr))
		}
		metrics.Op("crypto_order", err)
		if errors.Is(err, domain.ErrProvider) {
			return nil, err
		}
		return nil, domain.ErrProvider.WithCause(err)
	}

	u := domain.CryptoIntentUpdate{
		ProviderOrderID: order.ProviderOrderID,
		CheckoutURL:     order.CheckoutURL,
		QRContent:       order.QRContent,
		ExpiresAt:       order.ExpiresAt,
		At:              s.now(),
	}
	// 状态不变，只补三方返回的字段
	if _, err := s.store.TransitionCryptoIntent(ctx, intent.MerchantOrderID, domain.CryptoIntentPending, domain.CryptoIntentPending, u); err != nil {
		return nil, err
	}
	intent.ProviderOrderID = order.ProviderOrderID
	intent.CheckoutURL = order.CheckoutURL
	intent.QRContent = order.QRContent
	if order.ExpiresAt != nil {
		intent.ExpiresAt = order.ExpiresAt
	}

	metrics.Op("crypto_order", nil)
	logger.Info(ctx, "收银台下单成功",
		zap.Int64("company_id", companyID),
		zap.String("merchant_order_id", intent.MerchantOrderID),
		zap.String("provider_order_id", order.ProviderOrderID),
		zap.String("amount", amount.String()),
	)
	return intent, nil
}

// HandleProviderWebhook 收银台回调
// 只有验签通过才会改状态；同一个三方交易号只处理一次；充值成功只记 pending_approval，不直接入账
func (s *Service) HandleProviderWebhook(ctx context.Context, h domain.WebhookHeaders, payload []byte) error {
	n, err := s.provider.ParseNotification(h, payload)
	if err != nil {
		metrics.WebhookRejectTotal.WithLabelValues(providerName, "signature").Inc()
		logger.Warn(ctx, "收银台回调验签失败", zap.String("nonce", h.Nonce), zap.Error(err))
		return err
	}

	intent, err := s.store.GetCryptoIntentByOrder(ctx, n.MerchantOrderID)
	if err != nil {
		metrics.WebhookRejectTotal.WithLabelValues(providerName, "unknown_order").Inc()
		return err
	}

	switch n.Status {
	case domain.CryptoNotifySuccess:
		return s.recordDeposit(ctx, intent, n)
	case domain.CryptoNotifyFailed, domain.CryptoNotifyExpired:
		moved, err := s.store.TransitionCryptoIntent(ctx, intent.MerchantOrderID, domain.CryptoIntentPending, domain.CryptoIntentFailed,
			domain.CryptoIntentUpdate{FailureReason: strings.ToLower(string(n.Status)), At: s.now()})
		if err != nil {
			return err
		}
		logger.Info(ctx, "收银台订单未支付",
			zap.String("merchant_order_id", intent.MerchantOrderID),
			zap.String("status", string(n.Status)),
			zap.Bool("moved", moved),
		)
		return nil
	default:
		logger.Warn(ctx, "收银台回调状态未知", zap.String("status", string(n.Status)))
		return nil
	}
}

func (s *Service) recordDeposit(ctx context.Context, intent *domain.CryptoPaymentIntent, n *domain.CryptoNotification) error {
	if n.TransactionID == "" {
		return domain.ErrValidation.WithMsg("notification without transaction id")
	}
	if n.Amount.Amount != intent.Amount || n.Amount.Currency != intent.Currency {
		// 金额对不上不入账，留给人工处理
		metrics.WebhookRejectTotal.WithLabelValues(providerName, "amount_mismatch").Inc()
		logger.Error(ctx, "收银台回调金额不一致",
			zap.String("merchant_order_id", intent.MerchantOrderID),
			zap.String("expected", intent.Money().String()),
			zap.String("got", n.Amount.String()),
		)
		return domain.ErrValidation.WithMsg("amount mismatch for order %s", intent.MerchantOrderID)
	}

	var duplicate bool
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		first, err := s.store.MarkProcessed(txCtx, providerName, n.TransactionID, "crypto_deposit", intent.MerchantOrderID)
		if err != nil {
			return err
		}
		if !first {
			duplicate = true
			return nil
		}
		moved, err := s.store.TransitionCryptoIntent(txCtx, intent.MerchantOrderID, domain.CryptoIntentPending, domain.CryptoIntentCompleted,
			domain.CryptoIntentUpdate{At: s.now()})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrConflict.WithMsg("order %s is not pending", intent.MerchantOrderID)
		}
		txID := n.TransactionID
		return s.store.CreateCryptoTx(txCtx, &domain.CryptoTransaction{
			OwnerType:             domain.OwnerCompany,
			OwnerID:               intent.CompanyID,
			Type:                  domain.CryptoTxDeposit,
			Amount:                intent.Amount,
			Currency:              intent.Currency,
			Network:               n.Network,
			Status:                domain.CryptoTxPendingApproval,
			ProviderTransactionID: &txID,
			IntentID:              &intent.ID,
		})
	})
	if err != nil {
		metrics.Op("crypto_deposit_webhook", err)
		return err
	}
	if duplicate {
		logger.Info(ctx, "收银台回调重复，忽略", zap.String("transaction_id", n.TransactionID))
		return nil
	}
	metrics.Op("crypto_deposit_webhook", nil)
	logger.Info(ctx, "加密货币充值待审核",
		zap.Int64("company_id", intent.CompanyID),
		zap.String("merchant_order_id", intent.MerchantOrderID),
		zap.String("transaction_id", n.TransactionID),
		zap.String("amount", intent.Money().String()),
	)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, companyID int64, merchantOrderID string) (*domain.CryptoPaymentIntent, error) {
	intent, err := s.store.GetCryptoIntentByOrder(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if intent.CompanyID != companyID {
		return nil, domain.ErrNotFound.WithMsg("merchant order %s", merchantOrderID)
	}
	return intent, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n-3])
}
