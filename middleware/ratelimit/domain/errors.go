package domain

import "errors"

var (
	// ErrStoreUnavailable indica que o backing store não respondeu à sonda,
	// ao incremento ou ao bulkhead dentro do prazo. Sempre vira reject (fail-closed).
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrInvalidConfig envolve todo erro de configuração; é fatal na inicialização.
	ErrInvalidConfig = errors.New("invalid rate limit config")
)
