package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsEmitter(t *testing.T) {
	client := &fakeCloudWatch{}
	m := NewMetricsEmitter(client, "SpaCheckout")
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return fixed }

	err := m.Emit(context.Background(),
		Datum{Name: "BookingsCreated", Value: 1, Dimensions: map[string]string{"PurchaseType": "service"}},
		Datum{Name: "BookedSubtotal", Value: 40000, Unit: cwtypes.StandardUnitNone},
	)
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "SpaCheckout", *in.Namespace)
	require.Len(t, in.MetricData, 2)
	assert.Equal(t, "BookingsCreated", *in.MetricData[0].MetricName)
	assert.Equal(t, cwtypes.StandardUnitCount, in.MetricData[0].Unit)
	assert.Equal(t, "PurchaseType", *in.MetricData[0].Dimensions[0].Name)
	assert.Equal(t, 40000.0, *in.MetricData[1].Value)
	assert.Equal(t, fixed, *in.MetricData[1].Timestamp)
}

func TestMetricsEmitterNoData(t *testing.T) {
	client := &fakeCloudWatch{}
	require.NoError(t, NewMetricsEmitter(client, "ns").Emit(context.Background()))
	assert.Empty(t, client.inputs)
}
