package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultTagKey             = "create-cloudwatch-alarm"
	DefaultApplicationNameTag = "application-name"
	DefaultApplicationTypeTag = "application-type"
	DefaultApplicationName    = "app"
	DefaultApplicationType    = "dev"
)

var c Config

type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	AWS struct {
		Region            string `yaml:"region"`
		DynamoDBTableName string `yaml:"dynamodb_table_name"`
		SNSTopicARN       string `yaml:"sns_topic_arn"`
	} `yaml:"aws"`

	CloudWatch struct {
		Namespace  string `yaml:"namespace"`
		MaxRetries uint64 `yaml:"max_retries"`
	} `yaml:"cloudwatch"`

	Lifecycle struct {
		// TagKey marks instances that get alarms
		TagKey             string `yaml:"tag_key"`
		ApplicationNameTag string `yaml:"application_name_tag"`
		ApplicationTypeTag string `yaml:"application_type_tag"`
		// AutoScalingGroups are glob patterns of handled groups, all groups when empty
		AutoScalingGroups []string `yaml:"auto_scaling_groups"`
	} `yaml:"lifecycle"`

	Bootstrap struct {
		ApplicationName string `yaml:"application_name"`
		ApplicationType string `yaml:"application_type"`
		// DefaultAlarmsFile replaces the packaged default alarm definitions
		DefaultAlarmsFile string `yaml:"default_alarms_file"`
	} `yaml:"bootstrap"`
}

// Load reads the YAML configuration file. An empty filename resets the
// configuration to its zero value.
func Load(filename string) error {
	c = Config{}
	if filename == "" {
		return nil
	}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func Get() *Config {
	return &c
}

// CheckAndSetDefaults checks and sets default values
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.AWS.DynamoDBTableName == "" {
		return errors.New("missing DynamoDB table name")
	}
	if cfg.Lifecycle.TagKey == "" {
		cfg.Lifecycle.TagKey = DefaultTagKey
	}
	if cfg.Lifecycle.ApplicationNameTag == "" {
		cfg.Lifecycle.ApplicationNameTag = DefaultApplicationNameTag
	}
	if cfg.Lifecycle.ApplicationTypeTag == "" {
		cfg.Lifecycle.ApplicationTypeTag = DefaultApplicationTypeTag
	}
	if cfg.Bootstrap.ApplicationName == "" {
		cfg.Bootstrap.ApplicationName = DefaultApplicationName
	}
	if cfg.Bootstrap.ApplicationType == "" {
		cfg.Bootstrap.ApplicationType = DefaultApplicationType
	}
	return nil
}
