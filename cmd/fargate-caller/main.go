// Command fargate-caller is the scheduled Lambda function. It POSTs the
// current timestamp to the internal load balancer named by FARGATE_ALB_URL.
//
// Build for the provided.al2023 runtime:
//
//	GOOS=linux GOARCH=arm64 go build -tags lambda.norpc -o bootstrap ./cmd/fargate-caller
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/config"
	"github.com/lex00/wetwire-fargate-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)
	handler := caller.NewHandler(logger, cfg.TargetURL)

	lambda.Start(handler.Handle)
}
