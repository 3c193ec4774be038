package config

import (
	"github.com/urfave/cli"

	"github.com/yuichiro-h/asg-cw-alarms/log"
)

// Flags are the command line flags shared by the functions. Inside Lambda
// they are normally unset and the environment variables apply.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "YAML configuration file",
			EnvVar: "CONFIG_FILE",
		},
		cli.StringFlag{
			Name:   "table",
			Usage:  "DynamoDB table with alarm definitions",
			EnvVar: "DYNAMODB_TABLE_NAME",
		},
		cli.StringFlag{
			Name:   "sns-topic-arn",
			Usage:  "SNS topic notified by alarms",
			EnvVar: "SNS_TOPIC_ARN",
		},
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "DEBUG, INFO, WARNING or ERROR",
			EnvVar: "LOGLEVEL",
		},
		cli.StringFlag{
			Name:   "region",
			Usage:  "AWS region",
			EnvVar: "AWS_REGION",
		},
		cli.BoolFlag{
			Name:   "debug",
			EnvVar: "DEBUG",
		},
	}
}

// Setup loads the configuration file, applies flag overrides and
// initializes logging. It is meant to be used as cli.App.Before.
func Setup(ctx *cli.Context) error {
	if err := Load(ctx.String("config")); err != nil {
		return err
	}

	cfg := Get()
	if v := ctx.String("table"); v != "" {
		cfg.AWS.DynamoDBTableName = v
	}
	if v := ctx.String("sns-topic-arn"); v != "" {
		cfg.AWS.SNSTopicARN = v
	}
	if v := ctx.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := ctx.String("region"); v != "" {
		cfg.AWS.Region = v
	}
	if ctx.Bool("debug") {
		cfg.Debug = true
	}
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return err
	}

	return log.Init(cfg.LogLevel, cfg.Debug)
}
