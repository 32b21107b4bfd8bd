package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(in *cloudwatch.PutMetricDataInput) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func (f *fakeCloudWatch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestCloudWatchPublisher_Put(t *testing.T) {
	fake := &fakeCloudWatch{}
	p := &cloudWatchPublisher{client: fake, namespace: "FedacnAPI", log: zap.NewNop()}
	at := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	p.put("CheckIns", 1, map[string]string{"SessionID": "9", "EventID": "3"}, at)

	require.Equal(t, 1, fake.calls())
	in := fake.inputs[0]
	assert.Equal(t, "FedacnAPI", aws.StringValue(in.Namespace))
	require.Len(t, in.MetricData, 1)

	d := in.MetricData[0]
	assert.Equal(t, "CheckIns", aws.StringValue(d.MetricName))
	assert.Equal(t, 1.0, aws.Float64Value(d.Value))
	assert.Equal(t, cloudwatch.StandardUnitCount, aws.StringValue(d.Unit))
	assert.Equal(t, at, aws.TimeValue(d.Timestamp))
	require.Len(t, d.Dimensions, 2)
	assert.Equal(t, "EventID", aws.StringValue(d.Dimensions[0].Name), "dimensions are sorted")
	assert.Equal(t, "SessionID", aws.StringValue(d.Dimensions[1].Name))
}

func TestCloudWatchPublisher_ErrorsAreSwallowed(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	p := &cloudWatchPublisher{client: fake, namespace: "FedacnAPI", log: zap.NewNop()}

	assert.NotPanics(t, func() { p.put("ProgressEntries", 1, nil, time.Now()) })
	assert.Equal(t, 1, fake.calls())
}

func TestCloudWatchPublisher_PublishIsAsync(t *testing.T) {
	fake := &fakeCloudWatch{}
	p := &cloudWatchPublisher{client: fake, namespace: "FedacnAPI", log: zap.NewNop()}

	p.publish("MealPlanApplications", 1, map[string]string{"MealPlanID": "4"})
	assert.Eventually(t, func() bool { return fake.calls() == 1 }, time.Second, 10*time.Millisecond)
}
