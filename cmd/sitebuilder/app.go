package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"sitebuilder/pkg/config"
	"sitebuilder/pkg/eventlog"
	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/metrics"
	"sitebuilder/pkg/opsserver"
	"sitebuilder/pkg/persistence"
	"sitebuilder/pkg/progress"
	"sitebuilder/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// app is the wiring shared by the commands.
type app struct {
	cfg      config.Config
	store    *persistence.Store
	sink     progress.Sink
	redis    *progress.RedisSink // nil unless configured
	recorder metrics.Recorder
	logger   *logx.Logger
	closers  []func()
}

// openApp loads the project config and secrets, opens the site repository and starts the
// progress sinks and, when enabled, the ops server.
func openApp(opts *rootOptions, in io.Reader, out io.Writer) (*app, error) {
	if err := config.LoadConfig(opts.projectDir); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	password, err := unlockSecrets(opts.projectDir, in, out)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, recorder: metrics.Nop(), logger: logx.NewLogger("sitebuilder")}

	store, err := persistence.Open(config.ResolvePath(cfg.Database.Path), password)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.onClose(func() { _ = store.Close() })

	events, err := eventlog.NewWriter(config.ResolvePath(cfg.Progress.EventLogDir))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	a.onClose(func() { _ = events.Close() })

	sinks := []progress.Sink{progress.NewLogSink("progress"), events}
	if cfg.Progress.RedisAddr != "" {
		a.redis = progress.NewRedisSink(cfg.Progress.RedisAddr, cfg.Progress.RedisTopic,
			progress.WithHistoryTTL(cfg.Progress.HistoryTTL))
		a.onClose(func() { _ = a.redis.Close() })
		sinks = append(sinks, a.redis)
	}
	ch := progress.NewChannel(progress.Multi(sinks...))
	a.sink = ch
	a.onClose(ch.Close)

	addr := opts.metricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.ListenAddr
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			version.Collector(),
		)
		a.recorder = metrics.NewPrometheusRecorder(reg)

		srv, err := opsserver.Start(addr, reg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.logger.Warn("⚠️ %v", err)
			}
		})
	}
	return a, nil
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// close releases resources in reverse order; the progress queue drains before its sinks close.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// unlockSecrets decrypts the project secrets file into memory and returns the project password.
// The password comes from SITEBUILDER_PASSWORD, or a prompt when stdin is a terminal. Without a
// password, secrets resolve from the environment only.
func unlockSecrets(projectDir string, in io.Reader, out io.Writer) (string, error) {
	password := os.Getenv(envPassword)
	if !config.SecretsFileExists(projectDir) {
		return password, nil
	}

	if password == "" && isTerminal(in) {
		p, err := readSecret(in, out, "🔐 Project password: ")
		if err != nil {
			return "", err
		}
		password = p
	}
	if password == "" {
		logx.NewLogger("sitebuilder").Warn("⚠️ secrets file present but %s is not set; using environment variables only", envPassword)
		return "", nil
	}

	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return "", fmt.Errorf("failed to unlock secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return password, nil
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecret reads one value without echo from a terminal, or one line from any other reader.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		s := string(value)
		for i := range value {
			value[i] = 0
		}
		return s, nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}
