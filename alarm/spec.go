package alarm

import (
	"sort"

	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/pkg/errors"
)

const (
	// Namespace is the CloudWatch namespace of EC2 instance metrics
	Namespace = "AWS/EC2"
	// DimensionInstanceID is the metric dimension alarms are bound to
	DimensionInstanceID = "InstanceId"
	// DefaultEvaluationPeriods is used when a spec does not set EvaluationPeriods
	DefaultEvaluationPeriods = 1
)

var comparisonOperators = map[string]bool{
	cloudwatch.ComparisonOperatorGreaterThanThreshold:          true,
	cloudwatch.ComparisonOperatorLessThanThreshold:             true,
	cloudwatch.ComparisonOperatorGreaterThanOrEqualToThreshold: true,
	cloudwatch.ComparisonOperatorLessThanOrEqualToThreshold:    true,
}

var statistics = map[string]bool{
	cloudwatch.StatisticAverage:     true,
	cloudwatch.StatisticSum:         true,
	cloudwatch.StatisticMinimum:     true,
	cloudwatch.StatisticMaximum:     true,
	cloudwatch.StatisticSampleCount: true,
}

// Spec is the desired configuration of one alarm, independent of any instance.
type Spec struct {
	// AlarmName is an optional label used as the alarm name suffix,
	// MetricName is used when it is empty
	AlarmName          string `dynamodbav:"AlarmName,omitempty" yaml:"AlarmName,omitempty" json:"AlarmName,omitempty"`
	MetricName         string `dynamodbav:"MetricName" yaml:"MetricName" json:"MetricName"`
	AlarmDescription   string `dynamodbav:"AlarmDescription,omitempty" yaml:"AlarmDescription,omitempty" json:"AlarmDescription,omitempty"`
	ComparisonOperator string `dynamodbav:"ComparisonOperator" yaml:"ComparisonOperator" json:"ComparisonOperator"`
	Period             Int    `dynamodbav:"Period" yaml:"Period" json:"Period"`
	Threshold          Float  `dynamodbav:"Threshold" yaml:"Threshold" json:"Threshold"`
	Statistic          string `dynamodbav:"Statistic" yaml:"Statistic" json:"Statistic"`
	ActionsEnabled     Bool   `dynamodbav:"ActionsEnabled" yaml:"ActionsEnabled" json:"ActionsEnabled"`
	EvaluationPeriods  Int    `dynamodbav:"EvaluationPeriods" yaml:"EvaluationPeriods" json:"EvaluationPeriods"`
}

// Suffix returns the last part of the alarm name for this spec.
func (s Spec) Suffix() string {
	if s.AlarmName != "" {
		return s.AlarmName
	}
	return s.MetricName
}

// CheckAndSetDefaults validates the spec and fills in EvaluationPeriods.
func (s *Spec) CheckAndSetDefaults() error {
	if s.MetricName == "" {
		return errors.New("missing MetricName")
	}
	if !comparisonOperators[s.ComparisonOperator] {
		return errors.Errorf("metric %v: unsupported ComparisonOperator %q", s.MetricName, s.ComparisonOperator)
	}
	if !statistics[s.Statistic] {
		return errors.Errorf("metric %v: unsupported Statistic %q", s.MetricName, s.Statistic)
	}
	if s.Period <= 0 {
		return errors.Errorf("metric %v: Period must be positive, got %v", s.MetricName, s.Period)
	}
	if s.EvaluationPeriods < 0 {
		return errors.Errorf("metric %v: EvaluationPeriods must be positive, got %v", s.MetricName, s.EvaluationPeriods)
	}
	if s.EvaluationPeriods == 0 {
		s.EvaluationPeriods = DefaultEvaluationPeriods
	}
	return nil
}

// Definitions maps an opaque definition key to an alarm spec.
type Definitions map[string]Spec

// CheckAndSetDefaults validates every spec and makes sure that
// MetricName is unique, since reconciliation joins on it.
func (d Definitions) CheckAndSetDefaults() error {
	seen := make(map[string]string, len(d))
	for _, key := range d.Keys() {
		spec := d[key]
		if err := spec.CheckAndSetDefaults(); err != nil {
			return errors.Wrapf(err, "alarm %v", key)
		}
		if other, ok := seen[spec.MetricName]; ok {
			return errors.Errorf("alarms %v and %v both use metric %v", other, key, spec.MetricName)
		}
		seen[spec.MetricName] = key
		d[key] = spec
	}
	return nil
}

// Keys returns the definition keys in sorted order.
func (d Definitions) Keys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ByMetric indexes the specs by MetricName.
func (d Definitions) ByMetric() map[string]Spec {
	out := make(map[string]Spec, len(d))
	for _, spec := range d {
		out[spec.MetricName] = spec
	}
	return out
}

// DefinitionSet is the desired alarm configuration of an
// (application name, application type) pair.
type DefinitionSet struct {
	Name   string      `dynamodbav:"Name"`
	Type   string      `dynamodbav:"Type"`
	Alarms Definitions `dynamodbav:"Alarms"`
}

// CheckAndSetDefaults validates the set identity and its alarms.
func (s *DefinitionSet) CheckAndSetDefaults() error {
	if s.Name == "" {
		return errors.New("missing Name")
	}
	if s.Type == "" {
		return errors.New("missing Type")
	}
	if s.Alarms == nil {
		return errors.Errorf("%v/%v: missing Alarms", s.Name, s.Type)
	}
	return errors.Wrapf(s.Alarms.CheckAndSetDefaults(), "%v/%v", s.Name, s.Type)
}

// Resource is an alarm materialized for one instance.
type Resource struct {
	// Name is the CloudWatch alarm name
	Name string
	// InstanceID is the instance the alarm watches
	InstanceID string
	Spec
}

// NewResource returns the alarm of spec for the given instance.
func NewResource(application, applicationType, instanceID string, spec Spec) Resource {
	return Resource{
		Name:       Name(application, applicationType, instanceID, spec.Suffix()),
		InstanceID: instanceID,
		Spec:       spec,
	}
}
