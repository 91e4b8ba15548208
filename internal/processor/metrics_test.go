package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalpipe/internal/types"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestRecordRun(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewCloudWatchMetrics(cw, nopLogger{})

	m.RecordRun(context.Background(), BatchResult{
		SignalsClaimed:       3,
		SignalsProcessed:     3,
		NotificationsCreated: 4,
		Duration:             250 * time.Millisecond,
		Results: []SignalResult{
			{SignalID: "sig_1", SignalType: types.SignalGetEstimateFormSubmitted, NotificationsCreated: 3},
			{SignalID: "sig_2", SignalType: types.SignalContactFormSubmitted, NotificationsCreated: 1},
			{SignalID: "sig_3", SignalType: types.SignalContactFormSubmitted, Errors: []string{"boom"}},
		},
	})

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, types.MetricNamespace, *input.Namespace)

	// Five run-level counters plus one dimensioned datum per signal type.
	require.Len(t, input.MetricData, 7)

	values := map[string]float64{}
	byType := map[string]float64{}
	for _, d := range input.MetricData {
		if len(d.Dimensions) == 0 {
			values[*d.MetricName] = *d.Value
			continue
		}
		assert.Equal(t, types.DimSignalType, *d.Dimensions[0].Name)
		byType[*d.Dimensions[0].Value] = *d.Value
	}

	assert.Equal(t, float64(3), values[types.MetricSignalsClaimed])
	assert.Equal(t, float64(4), values[types.MetricNotificationsCreated])
	assert.Equal(t, float64(1), values[types.MetricHookErrors])
	assert.Equal(t, float64(250), values[types.MetricRunDuration])

	assert.Equal(t, float64(3), byType[string(types.SignalGetEstimateFormSubmitted)])
	assert.Equal(t, float64(1), byType[string(types.SignalContactFormSubmitted)])
}

func TestRecordRunSwallowsPublishError(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics(cw, nopLogger{})

	// Must not panic or surface the error.
	m.RecordRun(context.Background(), BatchResult{SignalsClaimed: 1})

	assert.Len(t, cw.inputs, 1)
}
