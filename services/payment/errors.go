package payment

import "errors"

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrCurrency         = errors.New("unsupported currency")
	ErrUnauthenticated  = errors.New("missing user id")
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)
