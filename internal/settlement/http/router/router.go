package router

import (
	"bountyhub.com/internal/settlement/handler"
	"github.com/gin-gonic/gin"
)

// Webhooks 三方回调不带用户身份，靠签名校验
func Webhooks(api *gin.RouterGroup, h *handler.Handler) {
	wh := api.Group("/webhooks")
	{
		wh.POST("/fiat", h.FiatWebhook)
		wh.POST("/cryptopay", h.CryptoWebhook)
	}
}

func Fiat(api *gin.RouterGroup, h *handler.Handler) {
	deposits := api.Group("/deposits")
	{
		deposits.POST("/intents", h.CreatePaymentIntent)
		deposits.POST("/intents/:intent_id/confirm", h.ConfirmPayment)
	}
	escrows := api.Group("/escrows")
	{
		escrows.POST("", h.CreateEscrow)
		escrows.GET("/:submission_id", h.GetEscrow)
	}
	payouts := api.Group("/payouts")
	{
		payouts.POST("", h.RequestPayout)
		payouts.GET("", h.ListPayouts)
		payouts.GET("/:id", h.GetPayout)
	}
	methods := api.Group("/payment-methods")
	{
		methods.POST("", h.AddPaymentMethod)
		methods.GET("", h.ListPaymentMethods)
	}
	wallet := api.Group("/wallet")
	{
		wallet.GET("", h.GetWallet)
		wallet.GET("/transactions", h.ListTransactions)
	}
}

func Crypto(api *gin.RouterGroup, h *handler.Handler) {
	c := api.Group("/crypto")
	{
		c.POST("/deposits", h.CreateCryptoDeposit)
		c.GET("/deposits/:order_id", h.GetCryptoDeposit)
		c.POST("/wallets", h.AddCryptoWallet)
		c.GET("/wallets", h.ListCryptoWallets)
		c.POST("/withdrawals", h.CreateWithdrawal)
		c.GET("/withdrawals", h.ListWithdrawals)
		c.POST("/withdrawals/:id/cancel", h.CancelWithdrawal)
	}
}

func Disputes(api *gin.RouterGroup, h *handler.Handler) {
	d := api.Group("/disputes")
	{
		d.POST("", h.CreateDispute)
		d.GET("", h.ListDisputes)
		d.GET("/:id", h.GetDispute)
		d.GET("/:id/history", h.DisputeHistory)
	}
}

func Admin(api *gin.RouterGroup, h *handler.Handler, auth, logout gin.HandlerFunc) {
	admin := api.Group("/admin", auth)
	{
		admin.DELETE("/session", logout)

		admin.GET("/withdrawals", h.PendingWithdrawals)
		admin.GET("/withdrawals/:id/address", h.RevealAddress)
		admin.POST("/withdrawals/:id/approve", h.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.RejectWithdrawal)
		admin.POST("/withdrawals/:id/complete", h.CompleteWithdrawal)
		admin.POST("/withdrawals/:id/fail", h.FailWithdrawal)

		admin.GET("/crypto/deposits", h.PendingCryptoDeposits)
		admin.POST("/crypto/deposits/:id/approve", h.ApproveCryptoDeposit)
		admin.POST("/crypto/deposits/:id/reject", h.RejectCryptoDeposit)

		admin.POST("/payouts/:id/approve", h.ApprovePayout)
		admin.POST("/payouts/:id/retry", h.RetryPayout)
		admin.POST("/payouts/:id/refund", h.RefundPayout)

		admin.POST("/escrows/refund-expired", h.RefundExpiredEscrows)

		admin.POST("/disputes/:id/review", h.StartDisputeReview)
		admin.POST("/disputes/:id/resolve", h.ResolveDispute)
	}
}
