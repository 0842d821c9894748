package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/config"
	"github.com/lex00/wetwire-fargate-go/internal/logging"
	"github.com/lex00/wetwire-fargate-go/internal/metrics"
	"github.com/lex00/wetwire-fargate-go/internal/reach"
	"github.com/lex00/wetwire-fargate-go/internal/scheduler"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

type runOptions struct {
	once        bool
	target      string
	remote      bool
	functions   map[string]string
	account     string
	metricsAddr string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fire the callers on their schedule",
		Long: `Run drives the schedule rule outside EventBridge.

Locally, each caller runs in-process against --target. Callers the security
groups would block fail with a network rejection before anything dials, so
the outcome matches the deployed stack. With --remote, the deployed
functions are invoked through the Lambda API instead.

Examples:
    wetwire-fargate run --once --target internal-alb-123.us-east-1.elb.amazonaws.com
    wetwire-fargate run --remote --function FargateLambda=prod-FargateLambda-1A2B
    wetwire-fargate run --target localhost:8080 --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}
			if opts.metricsAddr == "" {
				opts.metricsAddr = cfg.MetricsAddr
			}
			return runSchedule(cmd.Context(), cfg, st, opts, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "Fire a single tick and exit")
	cmd.Flags().StringVar(&opts.target, "target", "", "Load balancer DNS name (default: $FARGATE_ALB_URL)")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Invoke the deployed functions with the Lambda API")
	cmd.Flags().StringToStringVar(&opts.functions, "function", nil, "Deployed function name per caller, as Caller=function")
	cmd.Flags().StringVar(&opts.account, "account", os.Getenv("AWS_ACCOUNT_ID"), "Account ID for the rule ARN in scheduled events")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")

	return cmd
}

func runSchedule(ctx context.Context, cfg *config.Config, st *stack.Stack, opts runOptions, out io.Writer) error {
	logger := logging.NewLogger(cfg)

	target := opts.target
	if target == "" {
		target = cfg.TargetURL
	}
	if target == "" && !opts.remote {
		return fmt.Errorf("no target: set --target or %s", trigger.EnvTargetURL)
	}
	callers := st.Bind(target)

	invoker, err := newInvoker(ctx, cfg, st, opts, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewScheduler(reg)

	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", opts.metricsAddr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched, err := scheduler.New(callers, invoker, logger, scheduler.Options{
		Interval:        st.Trigger.Rule.Schedule.Rate,
		Timeout:         cfg.InvocationTimeout,
		FireImmediately: true,
		Metrics:         m,
		OnTick:          func(r scheduler.TickReport) { printTick(out, r) },
	})
	if err != nil {
		return err
	}

	if opts.once {
		report := sched.Tick(ctx)
		printTick(out, report)
		return report.Err()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return sched.Run(ctx)
}

func newInvoker(ctx context.Context, cfg *config.Config, st *stack.Stack, opts runOptions, logger zerolog.Logger) (scheduler.Invoker, error) {
	source := scheduler.EventSource{Rule: st.Trigger.Rule.Name, Region: cfg.Region, Account: opts.account}
	if opts.remote {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return scheduler.NewLambdaInvokerFromConfig(awsCfg, opts.functions, source), nil
	}

	handler := func(c trigger.Caller) *caller.Handler {
		return caller.NewHandler(logger.With().Str("caller", c.Name).Logger(), c.Target.DNSName)
	}
	return scheduler.NewLocalInvoker(reach.NewGuard(st), handler, source), nil
}

func printTick(w io.Writer, r scheduler.TickReport) {
	fmt.Fprintf(w, "[%s] tick %s\n", r.Started.Format("15:04:05"), r.ID)
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			fmt.Fprintf(w, "  %-28s SKIPPED  previous invocation still running\n", res.Caller)
		case res.Err != nil:
			fmt.Fprintf(w, "  %-28s FAILED   %v\n", res.Caller, res.Err)
		default:
			fmt.Fprintf(w, "  %-28s OK       %s\n", res.Caller, res.Duration.Round(time.Millisecond))
		}
	}
}
