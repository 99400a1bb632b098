package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"report-scheduler/internal/app"
	"report-scheduler/internal/config"
	"report-scheduler/internal/logging"
)

const usage = `
jobctl - report scheduler administration

Usage:
  jobctl [flags] command [args]

Commands:
  list        Show the registered jobs and when they last ran
  run <job>   Run a job now, ignoring its interval
  migrate     Apply database migrations

Flags:
  -timeout duration   Give up after this long (default 10m)

Examples:
  jobctl list
  jobctl run outbox
  jobctl -timeout 30s run mart-import
`

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Give up after this long")
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	switch cmd := flag.Arg(0); cmd {
	case "list":
		err = list(ctx, a)
	case "run":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(1)
		}
		err = a.Scheduler.RunNow(ctx, flag.Arg(1))
		if err == nil {
			fmt.Printf("%s completed\n", flag.Arg(1))
		}
	case "migrate":
		err = a.Migrate(ctx)
		if err == nil {
			fmt.Println("migrations applied")
		}
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		a.Close()
		logger.Fatal(flag.Arg(0), zap.Error(err))
	}
}

func list(ctx context.Context, a *app.App) error {
	history, err := a.Claimer.History(ctx)
	if err != nil {
		return err
	}
	lastRun := make(map[string]time.Time, len(history))
	for _, h := range history {
		lastRun[h.JobName] = h.LastRunAt
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tINTERVAL\tLAST RUN")
	for _, j := range a.Scheduler.Jobs() {
		last := "never"
		if t, ok := lastRun[j.Name]; ok {
			last = t.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", j.Name, j.Interval, last)
	}
	return w.Flush()
}
