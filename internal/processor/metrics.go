package processor

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"signalpipe/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes run-level pipeline telemetry to CloudWatch.
// Metric emission is best-effort: a failed PutMetricData is logged and
// swallowed, never surfaced to the processing run.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the
// standard pipeline namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordRun emits one datum per run-level counter plus the run duration.
func (m *CloudWatchMetrics) RecordRun(ctx context.Context, result BatchResult) {
	hookErrors := 0
	for _, r := range result.Results {
		hookErrors += len(r.Errors)
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricSignalsClaimed),
				Value:      aws.Float64(float64(result.SignalsClaimed)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(types.MetricSignalsProcessed),
				Value:      aws.Float64(float64(result.SignalsProcessed)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(types.MetricNotificationsCreated),
				Value:      aws.Float64(float64(result.NotificationsCreated)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(types.MetricHookErrors),
				Value:      aws.Float64(float64(hookErrors)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String(types.MetricRunDuration),
				Value:      aws.Float64(float64(result.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	// A per-signal-type breakdown of created notifications, so dashboards
	// can tell a quiet form apart from a broken hook.
	byType := make(map[types.SignalType]int)
	for _, r := range result.Results {
		byType[r.SignalType] += r.NotificationsCreated
	}
	for signalType, created := range byType {
		input.MetricData = append(input.MetricData, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricNotificationsCreated),
			Value:      aws.Float64(float64(created)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String(types.DimSignalType),
					Value: aws.String(string(signalType)),
				},
			},
		})
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record processing run metrics",
			"error", err.Error(),
		)
	}
}
