package domain

import (
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
)

// 结算域错误，调用方用 errors.Is 判断
var (
	ErrValidation           = xerr.Define(codes.InvalidArgument, "VALIDATION_ERROR", "invalid request")
	ErrCurrencyMismatch     = xerr.Define(codes.InvalidArgument, "CURRENCY_MISMATCH", "currency mismatch")
	ErrInsufficientBalance  = xerr.Define(codes.FailedPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrRateLimitExceeded    = xerr.Define(codes.ResourceExhausted, "RATE_LIMIT_EXCEEDED", "too many requests, try again later")
	ErrInvalidWalletAddress = xerr.Define(codes.InvalidArgument, "INVALID_WALLET_ADDRESS", "invalid wallet address")
	ErrDuplicateWallet      = xerr.Define(codes.AlreadyExists, "DUPLICATE_WALLET", "wallet address already registered")
	ErrWithdrawalBlocked    = xerr.Define(codes.FailedPrecondition, "WITHDRAWAL_BLOCKED", "withdrawal blocked")
	ErrPayoutBlocked        = xerr.Define(codes.FailedPrecondition, "PAYOUT_BLOCKED", "payout blocked")
	ErrPaymentNotCompleted  = xerr.Define(codes.FailedPrecondition, "PAYMENT_NOT_COMPLETED", "payment not completed")
	ErrEscrowNotFound       = xerr.Define(codes.NotFound, "ESCROW_NOT_FOUND", "escrow not found")
	ErrEscrowNotHeld        = xerr.Define(codes.FailedPrecondition, "ESCROW_NOT_HELD", "escrow is not held")
	ErrNotAuthorized        = xerr.Define(codes.PermissionDenied, "NOT_AUTHORIZED", "not authorized")
	ErrProvider             = xerr.Define(codes.Unavailable, "PROVIDER_ERROR", "payment provider unavailable")
	ErrInvalidSignature     = xerr.Define(codes.Unauthenticated, "INVALID_SIGNATURE", "invalid signature")
	ErrNotFound             = xerr.Define(codes.NotFound, "NOT_FOUND", "record not found")
	ErrConflict             = xerr.Define(codes.Aborted, "CONFLICT", "state changed concurrently")
	ErrInvalidTransition    = xerr.Define(codes.FailedPrecondition, "INVALID_STATE", "invalid state transition")
)
