// Command ratemon runs the IP rate monitor standalone: it wires a
// packet source, the monitor, a periodic fold, event notifications,
// and either a headless or bubbletea watch view, the same way the
// teacher's own headless cmd/monitor entrypoint wires its engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	ratemoncfg "github.com/flowlens/ratemon/config"
	"github.com/flowlens/ratemon/ipheader"
	"github.com/flowlens/ratemon/notify"
	"github.com/flowlens/ratemon/pktsrc"
	"github.com/flowlens/ratemon/ratemon"
	"github.com/flowlens/ratemon/tick"
	"github.com/flowlens/ratemon/ui"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

// ExitCodeError signals a non-zero exit code without calling os.Exit
// directly, so run stays testable.
type ExitCodeError struct{ Code int }

func (e ExitCodeError) Error() string { return fmt.Sprintf("exit %d", e.Code) }

func main() {
	if err := run(); err != nil {
		var exitErr ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	userCfg := ratemoncfg.Load()

	var (
		iface      string
		synthetic  bool
		typeFlag   string
		offset     int
		ratio      float64
		thresh     int64
		memmaxKiB  uint64
		annotate   bool
		foldSecs   int
		watchMode  bool
		webhook    string
		command    string
		slack      string
		showVersion bool
	)

	flag.StringVar(&iface, "interface", userCfg.Interface, "Network interface to capture from")
	flag.BoolVar(&synthetic, "synthetic", false, "Drive a built-in synthetic traffic generator instead of capturing")
	flag.StringVar(&typeFlag, "type", userCfg.Type, "Sample type: packets or bytes")
	flag.IntVar(&offset, "offset", userCfg.Offset, "IPv4 header byte offset within each captured frame")
	flag.Float64Var(&ratio, "ratio", userCfg.Ratio, "Sampling ratio for forward-direction traffic, in (0,1]")
	flag.Int64Var(&thresh, "threshold", userCfg.Threshold, "Zoom-in threshold, in samples per second")
	flag.Uint64Var(&memmaxKiB, "memmax-kib", userCfg.MemMaxKiB, "Memory cap in KiB (0 = unbounded)")
	flag.BoolVar(&annotate, "annotate", userCfg.Annotate, "Enable per-packet annotation")
	flag.IntVar(&foldSecs, "fold-interval", userCfg.FoldSeconds, "Seconds between periodic folds")
	flag.BoolVar(&watchMode, "watch", false, "Launch the interactive bubbletea watch view")
	flag.StringVar(&webhook, "alert-webhook", userCfg.Alerts.Webhook, "Webhook URL for event notifications")
	flag.StringVar(&command, "alert-command", userCfg.Alerts.Command, "Command to run on event notifications")
	flag.StringVar(&slack, "alert-slack", userCfg.Alerts.SlackWebhook, "Slack webhook URL for event notifications")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("ratemon v%s\n", Version)
		return nil
	}

	if !synthetic && iface == "" {
		return fmt.Errorf("one of -interface or -synthetic is required")
	}

	var countMode ratemon.CountMode
	switch strings.ToLower(typeFlag) {
	case "", "packets":
		countMode = ratemon.CountPackets
	case "bytes":
		countMode = ratemon.CountBytes
	default:
		return fmt.Errorf("invalid -type %q: must be packets or bytes", typeFlag)
	}

	notifier := notify.New(notify.Config{Webhook: webhook, Command: command, SlackWebhook: slack})

	clock := tick.NewSystemClock(1)
	mon, err := ratemon.New(clock, ratemon.Config{
		Type:      countMode,
		Offset:    offset,
		Ratio:     ratio,
		Thresh:    thresh,
		MemMaxKiB: memmaxKiB,
		Annotate:  annotate,
		OnEvent: func(kind, detail string) {
			notifier.Notify(notify.Event{Kind: kind, Detail: detail, Tick: clock.Now()})
		},
	})
	if err != nil {
		return fmt.Errorf("configure monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runClockDriver(ctx, clock) })
	g.Go(func() error { return runCapture(ctx, mon, iface, synthetic) })
	g.Go(func() error { return runFoldTicker(ctx, mon, time.Duration(foldSecs)*time.Second) })

	if watchMode {
		g.Go(func() error { return runWatch(ctx, mon) })
	} else {
		g.Go(func() error { return runHeadless(ctx, mon) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runClockDriver advances clock once a second, standing in for the
// hardware timer or periodic goroutine a real host would drive the
// monitor's tick source with.
func runClockDriver(ctx context.Context, clock *tick.SystemClock) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			clock.Tick()
		}
	}
}

// runCapture feeds packets into mon until ctx is cancelled, from
// either a real interface or the synthetic generator.
func runCapture(ctx context.Context, mon *ratemon.Monitor, iface string, synthetic bool) error {
	if synthetic {
		gen := pktsrc.NewSynthetic(
			pktsrc.Flow{Src: [4]byte{10, 0, 0, 1}, Dst: [4]byte{10, 0, 0, 2}, TotalLen: 64},
			pktsrc.Flow{Src: [4]byte{10, 0, 1, 5}, Dst: [4]byte{192, 168, 0, 1}, TotalLen: 512},
		)
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				gen.Drive(1, func(p ipheader.Packet) { mon.Push(0, p) })
			}
		}
	}

	src, err := pktsrc.OpenRawSocket(iface)
	if err != nil {
		return fmt.Errorf("open capture on %q: %w", iface, err)
	}
	defer src.Close()
	return src.Run(ctx, mon)
}

// runFoldTicker periodically folds the tree to relieve memory
// pressure and age stale counters, independent of hitting the cap.
func runFoldTicker(ctx context.Context, mon *ratemon.Monitor, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			mon.Fold()
		}
	}
}

// runHeadless prints the look dump every two seconds until ctx is
// cancelled, the same shape as the teacher's headless monitor
// command.
func runHeadless(ctx context.Context, mon *ratemon.Monitor) error {
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()

	fmt.Println("ratemon — headless output")
	fmt.Println(strings.Repeat("=", 60))

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return ctx.Err()
		case <-t.C:
			h := mon.Handlers()
			fmt.Print(h["look"].Read())
		}
	}
}

func runWatch(ctx context.Context, mon *ratemon.Monitor) error {
	p := tea.NewProgram(ui.NewModel(mon, time.Second), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
