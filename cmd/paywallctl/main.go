// Package main содержит консольный клиент платного доступа: проверка статуса,
// выставление счёта и ожидание подтверждения оплаты.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/mmeshcher/stars-paywall/internal/gate"
	"github.com/mmeshcher/stars-paywall/internal/model"
)

type options struct {
	Server       string        `env:"PAYWALL_SERVER"`
	InitData     string        `env:"TELEGRAM_INIT_DATA"`
	Action       string
	PollAttempts uint64
	PollInterval time.Duration
	Verbose      bool
}

func parseOptions() (*options, error) {
	opts := &options{}
	if err := env.Parse(opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envServer := opts.Server
	envInitData := opts.InitData

	flag.StringVar(&opts.Server, "s", "http://localhost:8080", "paywall server address")
	flag.StringVar(&opts.InitData, "init-data", "", "telegram mini app initData")
	flag.StringVar(&opts.Action, "action", "status", "status | invoice | pay")
	flag.Uint64Var(&opts.PollAttempts, "poll", 10, "settlement status re-checks after payment")
	flag.DurationVar(&opts.PollInterval, "interval", 2*time.Second, "interval between settlement re-checks")
	flag.BoolVar(&opts.Verbose, "v", false, "verbose logging")
	flag.Parse()

	if envServer != "" {
		opts.Server = envServer
	}
	if envInitData != "" {
		opts.InitData = envInitData
	}

	if opts.InitData == "" {
		return nil, errors.New("initData is required: -init-data or TELEGRAM_INIT_DATA")
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if opts.Verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := gate.New(
		gate.NewHTTPBackend(opts.Server, logger),
		opts.InitData,
		gate.WithLogger(logger),
		gate.WithPolling(opts.PollAttempts, opts.PollInterval),
	)

	if err := run(ctx, g, opts.Action, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, g *gate.Gate, action string, in io.Reader, out io.Writer) error {
	state, err := g.Load(ctx)
	if err != nil {
		return err
	}

	switch action {
	case "status":
		fmt.Fprintln(out, state)
		return nil
	case "invoice":
		if state.Unlocked() {
			fmt.Fprintln(out, state)
			return nil
		}
		link, err := g.RequestInvoice(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, link)
		return nil
	case "pay":
		if state.Unlocked() {
			fmt.Fprintln(out, state)
			return nil
		}
		state, err = g.Pay(ctx, promptOpener(in, out))
		fmt.Fprintln(out, state)
		return err
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// promptOpener показывает ссылку и ждёт, пока пользователь сообщит итог оплаты.
func promptOpener(in io.Reader, out io.Writer) gate.OpenerFunc {
	return func(ctx context.Context, link string) (model.InvoiceStatus, error) {
		fmt.Fprintf(out, "Оплатите счёт: %s\nВведите результат (paid/cancelled/failed): ", link)

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		status := model.InvoiceStatus(strings.ToLower(strings.TrimSpace(line)))
		if status == "" {
			status = model.InvoiceStatusPending
		}
		return status, nil
	}
}
