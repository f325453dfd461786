package service

import (
	"fmt"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

// infraError tags a Redis or MySQL failure so callers can tell it apart from
// a business rejection while keeping the cause in the chain.
func infraError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInfrastructure, err)
}
