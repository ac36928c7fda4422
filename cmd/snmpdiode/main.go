// Command snmpdiode discovers network devices over SNMP and feeds them to a
// Diode ingestion service as device, interface and IP address entities.
//
// Without -apply it is a dry run: the entities are printed as JSON, one batch
// per device, to stdout or to -output.file. With -apply they are sent to
// -diode.target (or DIODE_TARGET) using -diode.api.key (or DIODE_API_KEY).
//
// Usage:
//
//	snmpdiode -address 192.0.2.1 -snmp.community public
//	snmpdiode -network 192.0.2.0/24 -snmp.version 3 -snmp.v3.username diode ...
//	snmpdiode -config.file targets.yml -apply -schedule.interval 1h
//	snmpdiode -config.file targets.yml -apply -schedule.interval 6h -trap.listen 0.0.0.0:162
//	snmpdiode -store.path history.db -store.history 10
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsonformat "github.com/vpbank/snmp_diode/format/json"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/app"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/catalog"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/scheduler"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/trapreceiver"
	"github.com/vpbank/snmp_diode/store/sqlite"
	"github.com/vpbank/snmp_diode/transport/diode"
	filetransport "github.com/vpbank/snmp_diode/transport/file"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpdiode: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		logLevel string
		logFmt   string
		showVer  bool

		cli config.TargetSpec

		cfgFile     string
		catalogFile string
		workers     int
		interval    time.Duration

		apply        bool
		diodeTarget  string
		diodeKey     string
		diodeTimeout time.Duration

		pretty         bool
		outFile        string
		fileMaxBytes   int64
		fileMaxBackups int

		storePath    string
		storeHistory int

		trapListen    string
		trapCommunity string
		trapCooldown  time.Duration
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.BoolVar(&showVer, "version", false, "Print version and exit")

	flag.StringVar(&cli.Address, "address", "", "Single target address")
	flag.StringVar(&cli.Network, "network", "", "Target network in CIDR form, e.g. 192.0.2.0/24")
	flag.IntVar(&cli.Port, "snmp.port", 0, "SNMP port (default 161)")
	flag.IntVar(&cli.Timeout, "snmp.timeout", 0, "SNMP request timeout in milliseconds (default 3000)")
	flag.IntVar(&cli.Retries, "snmp.retries", 0, "SNMP retries per request (default 1)")
	flag.BoolVar(&cli.ExponentialTimeout, "snmp.exponential.timeout", false, "Double the timeout on every retry")
	flag.StringVar(&cli.Version, "snmp.version", "", "SNMP version: 2c or 3 (env SNMP_VERSION, default 2c)")
	flag.StringVar(&cli.Community, "snmp.community", "", "SNMP v2c community (env SNMP_COMMUNITY)")
	flag.StringVar(&cli.Username, "snmp.v3.username", "", "SNMP v3 user (env SNMP_V3_USERNAME)")
	flag.StringVar(&cli.SecurityLevel, "snmp.v3.security.level", "", "noAuthNoPriv, authNoPriv or authPriv (env SNMP_V3_SECURITY_LEVEL)")
	flag.StringVar(&cli.AuthProtocol, "snmp.v3.auth.protocol", "", "MD5, SHA, SHA224, SHA256, SHA384, SHA512 (env SNMP_V3_AUTH_PROTOCOL)")
	flag.StringVar(&cli.AuthPassphrase, "snmp.v3.auth.passphrase", "", "Authentication passphrase (env SNMP_V3_AUTH_PASSPHRASE)")
	flag.StringVar(&cli.PrivProtocol, "snmp.v3.priv.protocol", "", "DES, AES, AES192, AES256, AES192C, AES256C (env SNMP_V3_PRIV_PROTOCOL)")
	flag.StringVar(&cli.PrivPassphrase, "snmp.v3.priv.passphrase", "", "Privacy passphrase (env SNMP_V3_PRIV_PASSPHRASE)")
	flag.StringVar(&cli.ContextName, "snmp.v3.context", "", "SNMP v3 context name")
	flag.StringVar(&cli.Site, "site", "", "Site assigned to discovered devices")
	flag.StringVar(&cli.Role, "role", "", "Role assigned to discovered devices")
	flag.StringVar(&cli.Platform, "platform", "", "Platform assigned to discovered devices")
	flag.BoolVar(&cli.SiteFromLocation, "site.from.location", false, "Use sysLocation as the site when none is set")

	flag.StringVar(&cfgFile, "config.file", "", "YAML targets file")
	flag.StringVar(&catalogFile, "catalog.file", "", "YAML manufacturer catalog merged over the built-in one")
	flag.IntVar(&workers, "workers", 32, "Number of concurrent discoveries")
	flag.DurationVar(&interval, "schedule.interval", 0, "Re-run discovery at this interval (0 = run once)")

	flag.BoolVar(&apply, "apply", false, "Send entities to the Diode ingestion service")
	flag.StringVar(&diodeTarget, "diode.target", config.EnvOr("DIODE_TARGET", ""), "Diode ingestion endpoint (env DIODE_TARGET)")
	flag.StringVar(&diodeKey, "diode.api.key", config.EnvOr("DIODE_API_KEY", ""), "Diode API key (env DIODE_API_KEY)")
	flag.DurationVar(&diodeTimeout, "diode.timeout", 30*time.Second, "Timeout of one ingestion request")

	flag.BoolVar(&pretty, "format.pretty", false, "Pretty-print dry-run JSON")
	flag.StringVar(&outFile, "output.file", "", "Write dry-run output to this file instead of stdout")
	flag.Int64Var(&fileMaxBytes, "output.max.bytes", 0, "Max output file size in bytes before rotation (0=disabled)")
	flag.IntVar(&fileMaxBackups, "output.max.backups", 5, "Max rotated output files to keep (0=unlimited)")

	flag.StringVar(&storePath, "store.path", "", "SQLite database recording every run")
	flag.IntVar(&storeHistory, "store.history", 0, "Print the last N runs from -store.path and exit")

	flag.StringVar(&trapListen, "trap.listen", "", "UDP address for SNMP traps that trigger rediscovery, e.g. 0.0.0.0:162 (requires -schedule.interval)")
	flag.StringVar(&trapCommunity, "trap.community", "", "Accept only traps with this v2c community (default any)")
	flag.DurationVar(&trapCooldown, "trap.cooldown", app.DefaultCooldown, "Minimum gap between trap-driven refreshes of one device")

	flag.Parse()

	if showVer {
		fmt.Println("snmpdiode", version)
		return nil
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	if storeHistory > 0 {
		return printHistory(storePath, storeHistory)
	}

	// ── Targets ──────────────────────────────────────────────────────────
	var file *config.File
	if cfgFile != "" {
		if file, err = config.LoadFile(cfgFile, logger); err != nil {
			return err
		}
	}
	targets, err := config.Resolve(cli, file, config.SpecFromEnv())
	if err != nil {
		return err
	}
	if apply && (diodeTarget == "" || diodeKey == "") {
		return fmt.Errorf("%w: -apply requires -diode.target and -diode.api.key (or DIODE_TARGET and DIODE_API_KEY)", config.ErrInvalid)
	}
	if trapListen != "" && interval <= 0 {
		return fmt.Errorf("%w: -trap.listen requires -schedule.interval", config.ErrInvalid)
	}

	cat, err := catalog.Load(catalogFile, logger)
	if err != nil {
		return err
	}

	// ── Build App ────────────────────────────────────────────────────────
	application, err := app.New(app.Config{
		Targets: targets,
		Workers: workers,
		Catalog: cat,
		Apply:   apply,
		Diode: diode.Config{
			Endpoint:   diodeTarget,
			APIKey:     diodeKey,
			AppName:    "snmp-diode",
			AppVersion: version,
			Timeout:    diodeTimeout,
		},
		Format: jsonformat.Config{PrettyPrint: pretty},
		Output: filetransport.Config{
			FilePath:   outFile,
			MaxBytes:   fileMaxBytes,
			MaxBackups: fileMaxBackups,
		},
		StorePath: storePath,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("snmpdiode: close", "error", err.Error())
		}
	}()

	// ── Run ──────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if trapListen != "" {
		receiver := trapreceiver.New(trapreceiver.Config{
			ListenAddr:  trapListen,
			Community:   trapCommunity,
			RefreshOnly: true,
		}, logger)
		if err := receiver.Start(ctx); err != nil {
			return err
		}
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			application.Watch(ctx, receiver.Output(), trapCooldown)
		}()
		// Let an in-flight refresh finish before the App is closed.
		defer func() {
			receiver.Stop()
			<-watchDone
		}()
	}

	sched := scheduler.New(application, interval, logger)
	logger.Info("snmpdiode: starting",
		"version", version,
		"addresses", application.Addresses(),
		"apply", apply,
		"interval", interval.String(),
		"trap_listen", trapListen,
	)
	return sched.Start(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func printHistory(path string, n int) error {
	if path == "" {
		return fmt.Errorf("%w: -store.history requires -store.path", config.ErrInvalid)
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.RecentRuns(context.Background(), n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Println(r)
	}
	return nil
}
