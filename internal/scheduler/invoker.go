package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// EventSource identifies the schedule rule that fires the callers.
type EventSource struct {
	Rule    string
	Region  string
	Account string
}

// ARN returns the rule ARN, or "" when the account is unknown.
func (e EventSource) ARN() string {
	if e.Account == "" || e.Region == "" {
		return ""
	}
	return fmt.Sprintf("arn:aws:events:%s:%s:rule/%s", e.Region, e.Account, e.Rule)
}

// ScheduledEvent builds the EventBridge payload a rule delivers to a target.
func ScheduledEvent(src EventSource, at time.Time) json.RawMessage {
	evt := events.CloudWatchEvent{
		Version:    "0",
		ID:         uuid.New().String(),
		DetailType: "Scheduled Event",
		Source:     "aws.events",
		AccountID:  src.Account,
		Time:       at.UTC(),
		Region:     src.Region,
		Resources:  []string{},
		Detail:     json.RawMessage(`{}`),
	}
	if arn := src.ARN(); arn != "" {
		evt.Resources = []string{arn}
	}
	data, _ := json.Marshal(evt)
	return data
}

// Checker vets a caller before it dials.
type Checker interface {
	Check(c trigger.Caller) error
}

// LocalInvoker runs the handler in-process, one per caller target. The
// checker is consulted first, so callers the security groups would block
// fail with a network rejection without opening a connection.
type LocalInvoker struct {
	checker Checker
	handler func(c trigger.Caller) *caller.Handler
	source  EventSource
}

// NewLocalInvoker creates an in-process invoker.
func NewLocalInvoker(checker Checker, handler func(c trigger.Caller) *caller.Handler, source EventSource) *LocalInvoker {
	return &LocalInvoker{checker: checker, handler: handler, source: source}
}

func (i *LocalInvoker) Invoke(ctx context.Context, c trigger.Caller) error {
	if err := i.checker.Check(c); err != nil {
		return err
	}
	return i.handler(c).Handle(ctx, ScheduledEvent(i.source, time.Now()))
}

// LambdaAPI is the subset of the Lambda client used by LambdaInvoker.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// LambdaInvoker calls the deployed functions synchronously.
type LambdaInvoker struct {
	client LambdaAPI
	// functions maps logical caller names to deployed function names
	functions map[string]string
	source    EventSource
}

// NewLambdaInvoker creates an invoker for deployed functions. Callers missing
// from functions are invoked by their logical name.
func NewLambdaInvoker(client LambdaAPI, functions map[string]string, source EventSource) *LambdaInvoker {
	return &LambdaInvoker{client: client, functions: functions, source: source}
}

// NewLambdaInvokerFromConfig creates an invoker from an AWS config. The
// source region defaults to the config region.
func NewLambdaInvokerFromConfig(cfg aws.Config, functions map[string]string, source EventSource) *LambdaInvoker {
	if source.Region == "" {
		source.Region = cfg.Region
	}
	return NewLambdaInvoker(awslambda.NewFromConfig(cfg), functions, source)
}

func (i *LambdaInvoker) Invoke(ctx context.Context, c trigger.Caller) error {
	name := c.Name
	if fn, ok := i.functions[c.Name]; ok {
		name = fn
	}

	out, err := i.client.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName:   aws.String(name),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        ScheduledEvent(i.source, time.Now()),
	})
	if err != nil {
		return fmt.Errorf("invoking %s: %w", name, err)
	}
	if out.FunctionError != nil {
		return functionError(name, out)
	}
	return nil
}

// functionError restores the caller's error category from the error
// document the Lambda runtime returns. Anything that is not a rejection,
// including runtime failures such as timeouts, counts as upstream.
func functionError(name string, out *awslambda.InvokeOutput) error {
	var doc messages.InvokeResponse_Error
	if err := json.Unmarshal(out.Payload, &doc); err != nil || doc.Message == "" {
		doc.Message = string(out.Payload)
	}
	if doc.Type == "RejectionError" {
		return &caller.RejectionError{Target: name, Reason: doc.Message}
	}
	return &caller.UpstreamError{
		Target:     name,
		StatusCode: int(out.StatusCode),
		Body:       fmt.Sprintf("%s: %s", aws.ToString(out.FunctionError), doc.Message),
	}
}
