package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subscription_reminder_bot/internal/app"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/infra/paidlink"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarker struct {
	calls    int
	userID   int64
	id       uuid.UUID
	expected *time.Time
	result   *subscription.Subscription
	err      error
}

func (f *fakeMarker) MarkAsPaid(_ context.Context, userID int64, id uuid.UUID, expected *time.Time) (*subscription.Subscription, error) {
	f.calls++
	f.userID, f.id, f.expected = userID, id, expected
	return f.result, f.err
}

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) RunOnce(context.Context) (app.SweepResult, error) {
	f.calls++
	return app.SweepResult{Processed: 3, Delivered: 2}, nil
}

type countingPayments struct{ n int }

func (c *countingPayments) IncPaymentMarked() { c.n++ }

type apiFixture struct {
	router  http.Handler
	signer  *paidlink.Signer
	marker  *fakeMarker
	sweeper *fakeSweeper
	counter *countingPayments
	sub     *subscription.Subscription
}

func newAPIFixture(t *testing.T, cronSecret string) *apiFixture {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	sub := &subscription.Subscription{
		ID:          uuid.New(),
		UserID:      9,
		PaymentDate: time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC),
		Enabled:     true,
	}
	f := &apiFixture{
		signer:  paidlink.NewSigner("secret", "https://subs.example.com"),
		marker:  &fakeMarker{result: sub},
		sweeper: &fakeSweeper{},
		counter: &countingPayments{},
		sub:     sub,
	}
	h := NewHandler(f.marker, f.signer, f.sweeper, f.counter, cronSecret, logrus.NewEntry(l))
	f.router = NewRouter(h, prometheus.NewRegistry())
	return f
}

func (f *apiFixture) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestMarkAsPaid_ValidToken(t *testing.T) {
	f := newAPIFixture(t, "")
	token, err := f.signer.Sign(f.sub)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/mark-as-paid?token="+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, f.marker.calls)
	assert.Equal(t, int64(9), f.marker.userID)
	assert.Equal(t, f.sub.ID, f.marker.id)
	require.NotNil(t, f.marker.expected)
	assert.True(t, f.sub.PaymentDate.Equal(*f.marker.expected))
	assert.Equal(t, 1, f.counter.n)

	var body markAsPaidResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Enabled)
	assert.Equal(t, f.sub.ID, body.SubscriptionID)
}

func TestMarkAsPaid_Errors(t *testing.T) {
	f := newAPIFixture(t, "")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/mark-as-paid", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/mark-as-paid?token=bogus", nil).Code)
	assert.Zero(t, f.marker.calls)

	token, err := f.signer.Sign(f.sub)
	require.NoError(t, err)

	f.marker.err = app.ErrStalePayment
	assert.Equal(t, http.StatusConflict, f.do(http.MethodGet, "/api/mark-as-paid?token="+token, nil).Code)

	f.marker.err = app.ErrNotOwner
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/mark-as-paid?token="+token, nil).Code)
	assert.Zero(t, f.counter.n)
}

func TestCron_RequiresSecret(t *testing.T) {
	f := newAPIFixture(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/cron", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/cron", map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Zero(t, f.sweeper.calls)

	rec := f.do(http.MethodGet, "/api/cron", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.sweeper.calls)

	var res app.SweepResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 3, res.Processed)
}

func TestCron_DisabledWithoutSecret(t *testing.T) {
	f := newAPIFixture(t, "")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/cron", map[string]string{"Authorization": "Bearer "}).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t, "")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", nil).Code)
}
