package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Datum is one metric observation.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// MetricsEmitter publishes datums to a CloudWatch namespace.
type MetricsEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

func NewMetricsEmitter(client CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{CloudWatch: client, Namespace: namespace, nowFunc: time.Now}
}

// Emit sends all datums in a single PutMetricData call.
func (m *MetricsEmitter) Emit(ctx context.Context, data ...Datum) error {
	if len(data) == 0 {
		return nil
	}
	ts := m.nowFunc().UTC()

	metricData := make([]cwtypes.MetricDatum, 0, len(data))
	for _, d := range data {
		unit := d.Unit
		if unit == "" {
			unit = cwtypes.StandardUnitCount
		}
		datum := cwtypes.MetricDatum{
			MetricName: awsString(d.Name),
			Value:      &d.Value,
			Unit:       unit,
			Timestamp:  &ts,
		}
		for k, v := range d.Dimensions {
			datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
				Name:  awsString(k),
				Value: awsString(v),
			})
		}
		metricData = append(metricData, datum)
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: metricData,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
