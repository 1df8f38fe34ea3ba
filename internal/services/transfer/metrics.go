package transfer

import (
	"time"

	"remit/internal/models"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordTransfer(models.TransferStatus)   {}
func (n *NoopMetricsCollector) RecordFraudWait(time.Duration)          {}
func (n *NoopMetricsCollector) RecordMutationAttempt(string)           {}
func (n *NoopMetricsCollector) RecordPublishFailure()                  {}
func (n *NoopMetricsCollector) RecordReconciled(models.TransferStatus) {}
