package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remit/internal/messaging"
	"remit/internal/models"
	"remit/internal/repositories/cache"
	"remit/internal/utils/retry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventFraudCheckCompleted is the audit event type sent to FraudEvents.
const EventFraudCheckCompleted = "FraudCheckCompleted"

// DetectorConfig tunes the detector rule and retention.
type DetectorConfig struct {
	Threshold decimal.Decimal
	ResultTTL time.Duration
	DedupeTTL time.Duration
}

// Detector scores check requests consumed from CheckFraud and publishes the
// verdicts.
type Detector struct {
	cfg       DetectorConfig
	cache     ResultCache
	publisher messaging.Publisher
	metrics   DetectorMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewDetector(cfg DetectorConfig, resultCache ResultCache, publisher messaging.Publisher, metrics DetectorMetrics, logger *zap.Logger) *Detector {
	if metrics == nil {
		metrics = NoopDetectorMetrics{}
	}
	return &Detector{
		cfg:       cfg,
		cache:     resultCache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate flags amounts strictly above the threshold.
func (d *Detector) Evaluate(amount decimal.Decimal) (isFraud bool, status string) {
	if amount.GreaterThan(d.cfg.Threshold) {
		return true, models.FraudStatusDeclined
	}
	return false, models.FraudStatusApproved
}

// Handle processes one CheckFraud message.
func (d *Detector) Handle(ctx context.Context, body []byte) error {
	var req models.FraudCheckRequest
	if err := json.Unmarshal(body, &req); err != nil {
		d.metrics.ProcessingError()
		return retry.Permanent(fmt.Errorf("decode check request: %w", err))
	}
	if req.TransferID == "" {
		d.metrics.ProcessingError()
		return retry.Permanent(errors.New("check request without transfer id"))
	}
	log := d.logger.With(zap.String("transfer_id", req.TransferID))

	first, err := d.cache.SetNX(ctx, cache.FraudDedupeKey(req.TransferID), "processed", d.cfg.DedupeTTL)
	if err != nil {
		d.metrics.ProcessingError()
		return fmt.Errorf("mark transfer processed: %w", err)
	}
	if !first {
		d.metrics.DuplicateMessage()
		stored, err := d.stored(ctx, req.TransferID)
		if err != nil {
			return err
		}
		if stored != nil {
			log.Info("duplicate check request, re-publishing stored outcome")
			return d.publish(ctx, *stored)
		}
		// Marked but never stored: the first attempt failed midway.
		log.Info("duplicate check request without stored outcome, scoring again")
	}

	isFraud, status := d.Evaluate(req.Amount)
	outcome := models.FraudCheckOutcome{
		TransferID: req.TransferID,
		IsFraud:    isFraud,
		Status:     status,
		Amount:     req.Amount,
		Timestamp:  d.now(),
	}

	if err := d.cache.SetWithTTL(ctx, cache.FraudOutcomeKey(req.TransferID), outcome, d.cfg.ResultTTL); err != nil {
		d.metrics.ProcessingError()
		return fmt.Errorf("store outcome: %w", err)
	}

	d.metrics.MessageProcessed()
	if isFraud {
		d.metrics.FraudDetected()
	}
	log.Info("fraud check scored",
		zap.String("amount", req.Amount.String()),
		zap.Bool("is_fraud", isFraud),
		zap.String("status", status))

	return d.publish(ctx, outcome)
}

func (d *Detector) stored(ctx context.Context, transferID string) (*models.FraudCheckOutcome, error) {
	var outcome models.FraudCheckOutcome
	found, err := d.cache.Get(ctx, cache.FraudOutcomeKey(transferID), &outcome)
	if err != nil {
		return nil, fmt.Errorf("read stored outcome: %w", err)
	}
	if !found || !outcome.Decided() {
		return nil, nil
	}
	return &outcome, nil
}

func (d *Detector) publish(ctx context.Context, outcome models.FraudCheckOutcome) error {
	if err := d.publisher.Publish(ctx, messaging.ExchangeFraudResult, "", outcome); err != nil {
		d.metrics.ProcessingError()
		return fmt.Errorf("publish outcome: %w", err)
	}

	event := models.FraudEvent{
		EventType:  EventFraudCheckCompleted,
		TransferID: outcome.TransferID,
		IsFraud:    outcome.IsFraud,
		Status:     outcome.Status,
		Amount:     outcome.Amount,
		Timestamp:  outcome.Timestamp,
	}
	if err := d.publisher.Publish(ctx, "", messaging.QueueFraudEvents, event); err != nil {
		// The verdict is out; the audit event is best effort.
		d.logger.Warn("publish fraud event failed",
			zap.String("transfer_id", outcome.TransferID), zap.Error(err))
	}
	return nil
}

// NoopDetectorMetrics is a no-op implementation of DetectorMetrics
type NoopDetectorMetrics struct{}

func (NoopDetectorMetrics) MessageProcessed() {}
func (NoopDetectorMetrics) FraudDetected()    {}
func (NoopDetectorMetrics) ProcessingError()  {}
func (NoopDetectorMetrics) DuplicateMessage() {}
