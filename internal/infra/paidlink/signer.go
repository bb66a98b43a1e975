// Package paidlink signs and verifies the one-click "mark as paid" links
// embedded in reminders.
package paidlink

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"subscription_reminder_bot/internal/domain/subscription"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid mark-as-paid token")

// Claims identify the payment a link was issued for. A link only works while
// the subscription is still waiting for that payment.
type Claims struct {
	SubscriptionID uuid.UUID `json:"id"`
	UserID         int64     `json:"userId"`
	PaymentDate    time.Time `json:"paymentDate"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: baseURL, now: time.Now}
}

// Sign returns a token bound to the subscription's current payment date.
func (s *Signer) Sign(sub *subscription.Subscription) (string, error) {
	claims := Claims{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PaymentDate:    sub.PaymentDate.UTC(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// MarkAsPaidURL builds the public link for the subscription's current payment.
func (s *Signer) MarkAsPaidURL(sub *subscription.Subscription) (string, error) {
	token, err := s.Sign(sub)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/api/mark-as-paid?token=" + url.QueryEscape(token), nil
}

func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SubscriptionID == uuid.Nil || claims.PaymentDate.IsZero() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
