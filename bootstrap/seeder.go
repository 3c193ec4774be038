// Package bootstrap seeds the definition table with default alarms when the
// stack is created.
package bootstrap

import (
	"context"
	_ "embed"
	"fmt"
	"io/ioutil"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/config"
)

//go:embed default_alarms.yaml
var defaultAlarms []byte

// ConfigLoadError is returned when the default alarm document can not be
// read, parsed or validated
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load default alarms from %v: %v", e.Path, e.Err)
}

// IsConfigLoadError reports whether the cause of err is a ConfigLoadError
func IsConfigLoadError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigLoadError)
	return ok
}

// ParseDefinitions parses a YAML or JSON document mapping definition keys
// to alarm specs, and validates it.
func ParseDefinitions(data []byte) (alarm.Definitions, error) {
	var defs alarm.Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(defs) == 0 {
		return nil, errors.New("no alarm definitions")
	}
	if err := defs.CheckAndSetDefaults(); err != nil {
		return nil, err
	}
	return defs, nil
}

// Writer stores definition sets
type Writer interface {
	PutDefinitions(ctx context.Context, set *alarm.DefinitionSet) error
}

// Config is the seeder configuration
type Config struct {
	// Store receives the default definitions
	Store Writer
	// ApplicationName is the application the defaults are written for
	ApplicationName string
	// ApplicationType is the application type the defaults are written for
	ApplicationType string
	// File replaces the packaged default document when set
	File   string
	Logger *zap.Logger
}

// CheckAndSetDefaults checks and sets default values
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.Store == nil {
		return errors.New("missing parameter Store")
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = config.DefaultApplicationName
	}
	if cfg.ApplicationType == "" {
		cfg.ApplicationType = config.DefaultApplicationType
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// Seeder writes the default definition set
type Seeder struct {
	Config
}

// New returns a new seeder
func New(cfg Config) (*Seeder, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Seeder{Config: cfg}, nil
}

// Load returns the default definition set
func (s *Seeder) Load() (*alarm.DefinitionSet, error) {
	path, data := "default_alarms.yaml", defaultAlarms
	if s.File != "" {
		path = s.File
		var err error
		if data, err = ioutil.ReadFile(s.File); err != nil {
			return nil, errors.WithStack(&ConfigLoadError{Path: path, Err: err})
		}
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, errors.WithStack(&ConfigLoadError{Path: path, Err: err})
	}
	return &alarm.DefinitionSet{
		Name:   s.ApplicationName,
		Type:   s.ApplicationType,
		Alarms: defs,
	}, nil
}

// Seed loads the default definition set and writes it, replacing any
// existing set of the same application.
func (s *Seeder) Seed(ctx context.Context) (*alarm.DefinitionSet, error) {
	set, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := s.Store.PutDefinitions(ctx, set); err != nil {
		return nil, err
	}
	s.Logger.Info("wrote default alarms",
		zap.String("application_name", set.Name),
		zap.String("application_type", set.Type),
		zap.Strings("metric_names", metricNames(set.Alarms)))
	return set, nil
}

// Handle serves the CloudFormation custom resource. Only Create writes,
// Update and Delete succeed without changes.
func (s *Seeder) Handle(ctx context.Context, event cfn.Event) (string, map[string]interface{}, error) {
	logger := s.Logger.With(
		zap.String("request_type", string(event.RequestType)),
		zap.String("logical_resource_id", event.LogicalResourceID))
	logger.Info("received custom resource event")

	if event.RequestType != cfn.RequestCreate {
		logger.Info("nothing to do")
		return event.PhysicalResourceID, nil, nil
	}

	set, err := s.Seed(ctx)
	if err != nil {
		logger.Error("could not write default alarms", zap.String("cause", fmt.Sprintf("%+v", err)))
		return "", nil, err
	}
	return alarm.Prefix(set.Name, set.Type) + "defaults", map[string]interface{}{
		"ApplicationName": set.Name,
		"ApplicationType": set.Type,
		"Alarms":          len(set.Alarms),
	}, nil
}

func metricNames(defs alarm.Definitions) []string {
	names := make([]string, 0, len(defs))
	for _, key := range defs.Keys() {
		names = append(names, defs[key].MetricName)
	}
	return names
}
