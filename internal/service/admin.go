package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/store"
)

// WipeConfirmationPhrase must be sent verbatim to wipe the shop data.
const WipeConfirmationPhrase = "WIPE ALL DATA"

// WipeAllData removes products, receipts, sale records and expenses. Users and
// audit logs are kept so the wipe itself stays on record.
func (s *Service) WipeAllData(ctx context.Context, req domain.WipeRequest) (domain.WipeResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.WipeResult{}, err
	}
	if strings.TrimSpace(req.Confirm) != WipeConfirmationPhrase {
		return domain.WipeResult{}, store.ErrConfirmationRequired
	}

	result, err := s.repo.WipeAll(ctx)
	if err != nil {
		return domain.WipeResult{}, err
	}

	s.invalidateReports(ctx)
	actor, _ := ActorFromContext(ctx)
	s.logger.Warn("shop data wiped",
		zap.String("actor", actor.Username),
		zap.Int("products", result.ProductsDeleted),
		zap.Int("receipts", result.ReceiptsDeleted),
		zap.Int("sales", result.SalesDeleted),
		zap.Int("expenses", result.ExpensesDeleted),
	)
	s.logAudit(ctx, "wipe_all", "shop", "all", fmt.Sprintf("products=%d,receipts=%d,sales=%d,expenses=%d",
		result.ProductsDeleted, result.ReceiptsDeleted, result.SalesDeleted, result.ExpensesDeleted))
	return result, nil
}
