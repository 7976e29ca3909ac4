package service

import (
	"context"

	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/membership"
	"github.com/gem-ledger/internal/models"
)

// MembershipService gates earning on joining the mandatory channels
type MembershipService struct {
	checker  MembershipChecker
	ledger   *LedgerService
	settings *SettingsService
}

// NewMembershipService creates a membership service
func NewMembershipService(checker MembershipChecker, ledger *LedgerService, settings *SettingsService) *MembershipService {
	return &MembershipService{
		checker:  checker,
		ledger:   ledger,
		settings: settings,
	}
}

// VerifyMembership checks every mandatory channel and marks the account verified
// once all of them are joined. Verification is never revoked here.
func (s *MembershipService) VerifyMembership(ctx context.Context, accountID string) (*models.VerificationResult, error) {
	acc, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.IsVerified {
		return &models.VerificationResult{Verified: true}, nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	missing := make([]models.MandatoryChannel, 0)
	for _, ch := range settings.Channels {
		handle, ok := membership.ChannelHandle(ch.URL)
		if !ok {
			continue
		}
		member, err := s.checker.IsMember(ctx, handle, acc.TelegramID)
		if err != nil {
			return nil, err
		}
		if !member {
			missing = append(missing, ch)
		}
	}

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"accountId": accountID,
		"missing":   len(missing),
	})
	if len(missing) > 0 {
		log.Info("membership verification incomplete")
		return &models.VerificationResult{Verified: false, Missing: missing}, nil
	}

	if _, err := s.ledger.SetVerified(ctx, accountID, true); err != nil {
		return nil, err
	}
	log.Info("membership verified")
	return &models.VerificationResult{Verified: true}, nil
}
