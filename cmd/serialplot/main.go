package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Station-Manager/serialplot"
	"github.com/Station-Manager/serialplot/tui"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.String("port", "", "serial device, e.g. /dev/ttyACM0 or COM3")
	baud := flag.Int("baud", serialplot.DefaultBaudRate.Int(), "baud rate (9600, 19200, 38400, 57600, 115200)")
	readTimeout := flag.Duration("read-timeout", serialplot.DefaultReadTimeout, "device read timeout; bounds stop latency")
	maxPoints := flag.Int("max-points", serialplot.DefaultMaxPoints, "samples kept per channel")
	logFile := flag.String("log-file", serialplot.DefaultLogFile, "operational log file (rotated at 1 MB, 5 kept)")
	list := flag.Bool("list", false, "list serial ports and exit")
	plain := flag.Bool("plain", false, "print events as text instead of the interactive display")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	debug := flag.Bool("debug", false, "also write the operational log to stderr (plain mode)")

	flag.Parse()

	if *list {
		if err := listPorts(os.Stdout); err != nil {
			log.Fatalf("listing ports: %v", err)
		}
		return
	}

	cfg := serialplot.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = serialplot.LoadConfig(*configPath); err != nil {
			log.Fatalf("config load failed: %v", err)
		}
	}

	// explicit flags override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Connection.PortName = *port
		case "baud":
			cfg.Connection.BaudRate = *baud
		case "read-timeout":
			cfg.Connection.ReadTimeout = *readTimeout
		case "max-points":
			cfg.Acquisition.MaxPoints = *maxPoints
		case "log-file":
			cfg.Logging.File = *logFile
		}
	})
	if err := serialplot.ValidateSettings(&cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	interactive := !*plain && term.IsTerminal(int(os.Stdout.Fd()))

	var console io.Writer
	if !interactive && (*debug || cfg.Logging.Console) {
		console = os.Stderr
	}
	logger, closer, err := serialplot.NewLogger(cfg.Logging, console)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closer.Close()
	logger.Info().Msg("application started")

	opts := serialplot.OptionsFromConfig(cfg.Acquisition)
	opts.Logger = &logger
	svc := serialplot.NewService(opts)
	defer func() {
		_ = svc.Close()
		logger.Info().Msg("application exited")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, svc, &logger)
	}

	if interactive {
		err = runInteractive(ctx, svc, cfg.Connection)
	} else {
		err = runPlain(ctx, os.Stdout, svc, cfg.Connection)
	}
	if err != nil {
		logger.Error().Err(err).Msg("exiting")
		_ = svc.Close()
		closer.Close()
		log.Fatal(err)
	}
}

func runInteractive(ctx context.Context, svc *serialplot.Service, conn serialplot.ConnectionConfig) error {
	sub := svc.Subscribe(0)
	defer sub.Close()

	model := tui.New(svc, sub.C(), tui.Config{
		Port:        conn.PortName,
		BaudRate:    conn.BaudRate,
		ReadTimeout: conn.ReadTimeout,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func listPorts(w io.Writer) error {
	ports, err := serialplot.DetailedPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports detected.")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Fprintf(w, "%s\tUSB %s:%s serial=%s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
			continue
		}
		fmt.Fprintln(w, p.Name)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, svc *serialplot.Service, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		svc.WritePrometheus(w)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}
