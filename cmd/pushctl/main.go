// Command pushctl drives the notification service from a device's point of
// view: register, refresh, schedule and send.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/tinywideclouds/go-pushhub-service/internal/schedule"
	"github.com/tinywideclouds/go-pushhub-service/pkg/client"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

const usage = `usage: pushctl <register|refresh|schedule|send|action> [flags]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "pushctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// options are shared by every subcommand.
type options struct {
	baseURL   string
	apiKey    string
	storePath string
	deviceID  string
	token     string
	platform  string
	zone      string
	tags      string
	message   string
	at        string
	debug     bool
}

func newFlagSet(name string, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("pushctl "+name, flag.ContinueOnError)
	fs.StringVar(&opts.baseURL, "url", "http://localhost:8080", "notification service base URL")
	fs.StringVar(&opts.apiKey, "api-key", "", "service API key")
	fs.StringVar(&opts.storePath, "store", "pushctl.db", "path of the local secure store")
	fs.StringVar(&opts.deviceID, "device-id", "", "installation id of this device")
	fs.StringVar(&opts.token, "token", "", "current platform push token")
	fs.StringVar(&opts.platform, "platform", "fcmv1", "device platform (apns or fcmv1)")
	fs.StringVar(&opts.zone, "zone", strings.Join(schedule.DefaultZoneIDs, ","), "reference time zone ids, tried in order")
	fs.StringVar(&opts.tags, "tags", "", "comma separated registration tags")
	fs.StringVar(&opts.message, "message", "", "notification text")
	fs.StringVar(&opts.at, "at", "", "wall-clock delivery time in the reference zone (2006-01-02T15:04)")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	return fs
}

func run(ctx context.Context, cmd string, args []string) error {
	var opts options
	fs := newFlagSet(cmd, &opts)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("PUSHCTL")); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cmd == "action" {
		return runAction(fs.Args(), logger)
	}

	zone, err := schedule.LoadReferenceZone(strings.Split(opts.zone, ",")...)
	if err != nil {
		return err
	}

	store, err := client.OpenBoltStore(opts.storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	device := &staticDevice{id: opts.deviceID, token: opts.token, platform: opts.platform}
	c := client.New(opts.baseURL, opts.apiKey, device, store, zone, logger)

	switch cmd {
	case "register":
		return c.RegisterDevice(ctx, splitTags(opts.tags)...)
	case "refresh":
		return c.RefreshRegistration(ctx)
	case "schedule":
		wallClock, err := time.Parse("2006-01-02T15:04", opts.at)
		if err != nil {
			return fmt.Errorf("%w: -at must look like 2006-01-02T15:04", push.ErrValidation)
		}
		return c.ScheduleNotification(ctx, opts.message, wallClock)
	case "send":
		return c.SendImmediateNotification(ctx, opts.message)
	default:
		return errors.New(usage)
	}
}

// runAction maps each argument to an app action and prints it.
func runAction(actions []string, logger *slog.Logger) error {
	svc := client.NewActionService(logger)
	svc.Subscribe(func(a client.Action) error {
		fmt.Println(a.String())
		return nil
	})
	var errs []error
	for _, a := range actions {
		errs = append(errs, svc.Trigger(a))
	}
	return errors.Join(errs...)
}

func splitTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// staticDevice is a DeviceInstallationProvider fed from flags.
type staticDevice struct {
	id       string
	token    string
	platform string
}

func (d *staticDevice) Token() string {
	return d.token
}

func (d *staticDevice) NotificationsSupported() bool {
	return d.token != ""
}

func (d *staticDevice) DeviceInstallation(tags ...string) (push.DeviceInstallation, error) {
	if d.id == "" {
		return push.DeviceInstallation{}, fmt.Errorf("%w: -device-id is required", push.ErrValidation)
	}
	return push.DeviceInstallation{
		InstallationID: d.id,
		Platform:       d.platform,
		PushChannel:    d.token,
		Tags:           tags,
	}, nil
}
