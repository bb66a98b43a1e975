package subscription

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateSchedule checks the fields the scheduler depends on. It runs once at
// the edit boundary so the algorithms can assume well-formed input.
func ValidateSchedule(s *Subscription) error {
	if err := validate.Struct(s.Cycle); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCycle, err)
	}
	if err := s.Cycle.Check(); err != nil {
		return err
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
		}
	}
	if s.PaymentDate.IsZero() {
		return fmt.Errorf("payment date is required")
	}
	if s.UntilDate != nil && !s.UntilDate.After(s.PaymentDate) {
		return fmt.Errorf("until date %s must be after payment date %s",
			s.UntilDate.Format(time.RFC3339), s.PaymentDate.Format(time.RFC3339))
	}
	for i, rule := range s.NotificationRules {
		if err := validate.Struct(rule); err != nil {
			return fmt.Errorf("%w #%d: %v", ErrInvalidRule, i, err)
		}
		if rule.LeadTime.Unit == LeadInstant && rule.LeadTime.Amount != 0 {
			return fmt.Errorf("%w #%d: instant rule must have amount 0", ErrInvalidRule, i)
		}
		if rule.LeadTime.Unit != LeadInstant && rule.LeadTime.Amount < 1 {
			return fmt.Errorf("%w #%d: %s lead time needs a positive amount", ErrInvalidRule, i, rule.LeadTime.Unit)
		}
	}
	return nil
}
