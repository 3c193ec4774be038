package bootstrap

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuichiro-h/asg-cw-alarms/alarm"
	"github.com/yuichiro-h/asg-cw-alarms/internal/awstest"
	"github.com/yuichiro-h/asg-cw-alarms/store"
)

func newTestSeeder(t *testing.T, db *awstest.DynamoDB, file string) (*Seeder, *store.Store) {
	s, err := store.New(store.Config{DynamoDB: db, TableName: "alarms"})
	require.NoError(t, err)
	seeder, err := New(Config{Store: s, File: file})
	require.NoError(t, err)
	return seeder, s
}

func TestPackagedDefaultsAreValid(t *testing.T) {
	defs, err := ParseDefinitions(defaultAlarms)
	require.NoError(t, err)
	assert.Len(t, defs, 3)
	assert.Contains(t, defs.ByMetric(), "CPUUtilization")
	assert.Contains(t, defs.ByMetric(), "StatusCheckFailed")
}

func TestCreateWritesDefaults(t *testing.T) {
	db := awstest.NewDynamoDB()
	seeder, s := newTestSeeder(t, db, "")

	id, data, err := seeder.Handle(context.Background(), cfn.Event{
		RequestType:       cfn.RequestCreate,
		LogicalResourceID: "DefaultAlarms",
	})
	require.NoError(t, err)
	assert.Equal(t, "app-dev-defaults", id)
	assert.Equal(t, "app", data["ApplicationName"])
	assert.Equal(t, 3, data["Alarms"])

	set, err := s.GetDefinitions(context.Background(), "app", "dev")
	require.NoError(t, err)
	assert.Equal(t, "app", set.Name)
	assert.Equal(t, "dev", set.Type)
	assert.Len(t, set.Alarms, 3)
	assert.Equal(t, alarm.Int(300), set.Alarms["cpu"].Period)
}

func TestUpdateAndDeleteAreNoops(t *testing.T) {
	db := awstest.NewDynamoDB()
	seeder, _ := newTestSeeder(t, db, "")

	for _, requestType := range []cfn.RequestType{cfn.RequestUpdate, cfn.RequestDelete} {
		id, _, err := seeder.Handle(context.Background(), cfn.Event{
			RequestType:        requestType,
			PhysicalResourceID: "app-dev-defaults",
		})
		require.NoError(t, err)
		assert.Equal(t, "app-dev-defaults", id)
	}
	assert.Empty(t, db.Puts)
}

func TestCustomFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "alarms.json")
	require.NoError(t, ioutil.WriteFile(file, []byte(`{
  "mem": {"MetricName": "mem_used_percent", "ComparisonOperator": "GreaterThanThreshold",
          "Threshold": "90", "Period": "60", "EvaluationPeriods": "5",
          "Statistic": "Average", "ActionsEnabled": "True"}
}`), 0600))
	db := awstest.NewDynamoDB()
	seeder, s := newTestSeeder(t, db, file)

	_, err := seeder.Seed(context.Background())
	require.NoError(t, err)
	set, err := s.GetDefinitions(context.Background(), "app", "dev")
	require.NoError(t, err)
	require.Len(t, set.Alarms, 1)
	assert.Equal(t, alarm.Int(5), set.Alarms["mem"].EvaluationPeriods)
	assert.Equal(t, alarm.Bool(true), set.Alarms["mem"].ActionsEnabled)
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, ioutil.WriteFile(invalid, []byte("cpu:\n  MetricName: CPUUtilization\n  Period: soon\n"), 0600))
	incomplete := filepath.Join(dir, "incomplete.yaml")
	require.NoError(t, ioutil.WriteFile(incomplete, []byte("cpu:\n  MetricName: CPUUtilization\n"), 0600))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, ioutil.WriteFile(empty, nil, 0600))

	for _, file := range []string{filepath.Join(dir, "missing.yaml"), invalid, incomplete, empty} {
		db := awstest.NewDynamoDB()
		seeder, _ := newTestSeeder(t, db, file)
		_, _, err := seeder.Handle(context.Background(), cfn.Event{RequestType: cfn.RequestCreate})
		assert.True(t, IsConfigLoadError(err), file)
		assert.Empty(t, db.Puts, file)
	}
}

func TestWriteFailureIsFatal(t *testing.T) {
	db := awstest.NewDynamoDB()
	db.PutErr = awserr.New("ResourceNotFoundException", "no table", nil)
	seeder, _ := newTestSeeder(t, db, "")

	_, _, err := seeder.Handle(context.Background(), cfn.Event{RequestType: cfn.RequestCreate})
	require.Error(t, err)
	assert.True(t, store.IsWriteError(err))
}
