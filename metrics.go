package main

import (
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"go.uber.org/zap"
)

// metricsPublisher records a count-style metric. Implementations must not block the caller.
type metricsPublisher interface {
	publish(name string, value float64, dims map[string]string)
}

type noopMetrics struct{}

func (noopMetrics) publish(string, float64, map[string]string) {}

// cloudWatchAPI is the slice of the CloudWatch client we use.
type cloudWatchAPI interface {
	PutMetricData(*cloudwatch.PutMetricDataInput) (*cloudwatch.PutMetricDataOutput, error)
}

// cloudWatchPublisher pushes counters to CloudWatch under one namespace.
type cloudWatchPublisher struct {
	client    cloudWatchAPI
	namespace string
	log       *zap.Logger
}

func newCloudWatchPublisher(region, namespace string, log *zap.Logger) (*cloudWatchPublisher, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &cloudWatchPublisher{
		client:    cloudwatch.New(sess),
		namespace: namespace,
		log:       log,
	}, nil
}

func (p *cloudWatchPublisher) publish(name string, value float64, dims map[string]string) {
	go p.put(name, value, dims, time.Now())
}

// put sends one datum synchronously; failures are logged, never returned.
func (p *cloudWatchPublisher) put(name string, value float64, dims map[string]string, at time.Time) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dimensions := make([]*cloudwatch.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, &cloudwatch.Dimension{
			Name:  aws.String(k),
			Value: aws.String(dims[k]),
		})
	}

	_, err := p.client.PutMetricData(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []*cloudwatch.MetricDatum{
			{
				MetricName: aws.String(name),
				Dimensions: dimensions,
				Timestamp:  aws.Time(at),
				Value:      aws.Float64(value),
				Unit:       aws.String(cloudwatch.StandardUnitCount),
			},
		},
	})
	if err != nil {
		p.log.Warn("cloudwatch put metric failed", zap.String("metric", name), zap.Error(err))
	}
}
