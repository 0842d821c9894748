package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

type mockLambda struct {
	mock.Mock
}

func (m *mockLambda) Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*awslambda.InvokeOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

var source = EventSource{Rule: "LambdaInvokeRule", Region: "us-east-1", Account: "123456789012"}

func TestScheduledEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var evt events.CloudWatchEvent
	require.NoError(t, json.Unmarshal(ScheduledEvent(source, at), &evt))

	assert.Equal(t, "Scheduled Event", evt.DetailType)
	assert.Equal(t, "aws.events", evt.Source)
	assert.Equal(t, "123456789012", evt.AccountID)
	assert.True(t, at.Equal(evt.Time))
	assert.Equal(t, []string{"arn:aws:events:us-east-1:123456789012:rule/LambdaInvokeRule"}, evt.Resources)
}

func TestScheduledEvent_UnknownAccount(t *testing.T) {
	var evt events.CloudWatchEvent
	require.NoError(t, json.Unmarshal(ScheduledEvent(EventSource{Rule: "LambdaInvokeRule", Region: "us-east-1"}, time.Now()), &evt))

	assert.Empty(t, evt.AccountID)
	assert.Empty(t, evt.Resources)
}

func TestLambdaInvoker_Success(t *testing.T) {
	client := &mockLambda{}
	client.On("Invoke", mock.Anything, mock.MatchedBy(func(in *awslambda.InvokeInput) bool {
		return aws.ToString(in.FunctionName) == "stack-FargateLambda-abc" &&
			in.InvocationType == lambdatypes.InvocationTypeRequestResponse
	})).Return(&awslambda.InvokeOutput{StatusCode: 200}, nil)

	inv := NewLambdaInvoker(client, map[string]string{"FargateLambda": "stack-FargateLambda-abc"}, source)
	require.NoError(t, inv.Invoke(context.Background(), trigger.Caller{Name: "FargateLambda"}))
	client.AssertExpectations(t)
}

func TestLambdaInvoker_FunctionError(t *testing.T) {
	client := &mockLambda{}
	client.On("Invoke", mock.Anything, mock.Anything).Return(&awslambda.InvokeOutput{
		StatusCode:    200,
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`{"errorMessage":"connect ETIMEDOUT"}`),
	}, nil)

	inv := NewLambdaInvoker(client, nil, source)
	err := inv.Invoke(context.Background(), trigger.Caller{Name: "FargateLambdaInPrivateVPC"})
	require.Error(t, err)
	assert.ErrorIs(t, err, caller.ErrUpstream)
	assert.Contains(t, err.Error(), "ETIMEDOUT")
}

func TestLambdaInvoker_RemoteRejection(t *testing.T) {
	client := &mockLambda{}
	client.On("Invoke", mock.Anything, mock.Anything).Return(&awslambda.InvokeOutput{
		StatusCode:    200,
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`{"errorMessage":"POST http://internal-alb rejected: name resolution failed","errorType":"RejectionError"}`),
	}, nil)

	inv := NewLambdaInvoker(client, nil, source)
	err := inv.Invoke(context.Background(), trigger.Caller{Name: "FargateLambda"})
	require.Error(t, err)
	assert.ErrorIs(t, err, caller.ErrNetworkRejection)
	assert.NotErrorIs(t, err, caller.ErrUpstream)

	var rejection *caller.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "FargateLambda", rejection.Target)
	assert.Contains(t, rejection.Reason, "name resolution failed")
}

func TestLambdaInvoker_TransportError(t *testing.T) {
	client := &mockLambda{}
	client.On("Invoke", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	inv := NewLambdaInvoker(client, nil, source)
	err := inv.Invoke(context.Background(), trigger.Caller{Name: "FargateLambda"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoking FargateLambda")
}

type denyAll struct{}

func (denyAll) Check(c trigger.Caller) error {
	return &caller.RejectionError{Target: c.Target.URL(), Reason: "denied"}
}

func TestLocalInvoker_CheckBeforeDial(t *testing.T) {
	built := false
	inv := NewLocalInvoker(denyAll{}, func(c trigger.Caller) *caller.Handler {
		built = true
		return nil
	}, source)

	err := inv.Invoke(context.Background(), trigger.Caller{Name: "FargateLambda"})
	assert.ErrorIs(t, err, caller.ErrNetworkRejection)
	assert.False(t, built)
}
