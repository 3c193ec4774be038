package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/bootstrap"
	"github.com/yuichiro-h/asg-cw-alarms/config"
	"github.com/yuichiro-h/asg-cw-alarms/log"
	"github.com/yuichiro-h/asg-cw-alarms/reconcile"
	"github.com/yuichiro-h/asg-cw-alarms/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "ddb-alarm"
	app.Usage = "reconcile CloudWatch alarms with changed alarm definitions"
	app.Flags = config.Flags()
	app.Before = config.Setup
	app.Action = func(ctx *cli.Context) error {
		d, err := newDispatcher()
		if err != nil {
			log.Get().Error("error occurred", zap.String("cause", fmt.Sprintf("%+v", err)))
			return err
		}
		lambda.StartHandler(d)
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newDispatcher() (*dispatcher, error) {
	cfg := config.Get()
	awsConfig := aws.NewConfig()
	if cfg.AWS.Region != "" {
		awsConfig = awsConfig.WithRegion(cfg.AWS.Region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	alarms, err := alarm.NewClient(alarm.ClientConfig{
		CloudWatch: cloudwatch.New(sess),
		Namespace:  cfg.CloudWatch.Namespace,
		TopicARN:   cfg.AWS.SNSTopicARN,
		MaxRetries: cfg.CloudWatch.MaxRetries,
		Logger:     log.Get(),
	})
	if err != nil {
		return nil, err
	}
	reconciler, err := reconcile.New(reconcile.Config{Alarms: alarms, Logger: log.Get()})
	if err != nil {
		return nil, err
	}

	definitions, err := store.New(store.Config{
		DynamoDB:  dynamodb.New(sess),
		TableName: cfg.AWS.DynamoDBTableName,
		Logger:    log.Get(),
	})
	if err != nil {
		return nil, err
	}
	seeder, err := bootstrap.New(bootstrap.Config{
		Store:           definitions,
		ApplicationName: cfg.Bootstrap.ApplicationName,
		ApplicationType: cfg.Bootstrap.ApplicationType,
		File:            cfg.Bootstrap.DefaultAlarmsFile,
		Logger:          log.Get(),
	})
	if err != nil {
		return nil, err
	}

	return &dispatcher{
		streams:        reconciler,
		customResource: cfn.LambdaWrap(seeder.Handle),
		logger:         log.Get(),
	}, nil
}
