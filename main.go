package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vearne/capsync/capture"
	"github.com/vearne/capsync/config"
	"github.com/vearne/capsync/consts"
	"github.com/vearne/capsync/launcher"
	"github.com/vearne/capsync/session"
	slog "github.com/vearne/simplelog"
	"go.uber.org/automaxprocs/maxprocs"
)

const banner string = `
   ______ ____ _ ____   _____ __  __ _   __ ______
  / ____// __ '// __ \ / ___/ \ \/ // | / // ____/
 / /    / /_/ // /_/ / \__ \   \  //  |/ // /
/ /___ / __  // ____/ ___/ /   / // /|  // /___
\____//_/ /_//_/     /____/   /_//_/ |_/ \____/
`

var settings config.Settings
var version bool

var rootCmd = &cobra.Command{
	Use:   "capsync",
	Short: "capture packets through a worker process",
	Long: `capsync captures from a live interface, a FIFO or stdin into a pcap file
and follows the file as the capture worker writes it:
        capsync -i eth0 -f "tcp port 80" -a duration:60
        capsync -i eth0 -w /tmp/ring.pcap -b filesize:10MB -b files:5`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	settings.BindFlags(rootCmd.Flags())
	rootCmd.Flags().BoolVar(&version, "version", false, "print version")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func run(cmd *cobra.Command, args []string) error {
	adjustLogLevel(settings.LogLevel)

	if version {
		fmt.Println("service: capsync")
		fmt.Println("Version", consts.Version)
		fmt.Println("BuildTime", consts.BuildTime)
		fmt.Println("GitTag", consts.GitTag)
		return nil
	}

	if _, err := maxprocs.Set(maxprocs.Logger(slog.Debug)); err != nil {
		slog.Warn("set GOMAXPROCS: %v", err)
	}

	if settings.ListInterfaces {
		return listInterfaces()
	}
	if err := settings.Finish(); err != nil {
		return err
	}
	if settings.IsChild() {
		if code := runWorker(&settings); code != 0 {
			os.Exit(code)
		}
		return nil
	}

	fmt.Print(banner)
	printSettings(&settings)
	if code := runSession(&settings); code != 0 {
		os.Exit(code)
	}
	return nil
}

func listInterfaces() error {
	devs, err := capture.ListDevices()
	if err != nil {
		return err
	}
	for i, d := range devs {
		line := fmt.Sprintf("%d. %s", i+1, d.Name)
		if d.Description != "" {
			line += " (" + d.Description + ")"
		}
		if len(d.Addresses) > 0 {
			line += " [" + strings.Join(d.Addresses, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func runSession(s *config.Settings) int {
	l := &launcher.Launcher{Stderr: os.Stderr}
	if s.LogLevel != "" {
		l.Args = []string{"--log-level", s.LogLevel}
	}
	if s.WorkerLog != "" {
		w, err := launcher.NewWorkerLog(s.WorkerLog, launcher.DefaultWorkerLogConfig)
		if err != nil {
			slog.Error("worker log: %v", err)
			return 1
		}
		defer w.Close()
		l.Stderr = w
	}

	var opts []session.Option
	if s.InProcess || !launcher.Supported {
		opts = append(opts, session.WithInProcess())
	}
	host := session.NewPollHost()
	ctrl := session.NewController(host, l, &session.SummaryPrinter{W: os.Stdout}, opts...)
	if err := ctrl.Start(&s.Options); err != nil {
		slog.Error("start capture: %v", err)
		return 1
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		var n int
		for sig := range sigs {
			n++
			slog.Info("receive signal:%v", sig)
			if n == 1 {
				host.Post(func() { _ = ctrl.Stop() })
			} else {
				host.Post(func() { _ = ctrl.Kill() })
			}
		}
	}()

	if err := host.Run(context.Background()); err != nil {
		slog.Error("event loop: %v", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "%d packets captured", ctrl.Packets())
	if d := ctrl.Drops(); d > 0 {
		fmt.Fprintf(os.Stderr, ", %d dropped", d)
	}
	fmt.Fprintln(os.Stderr)
	if ctrl.State() != session.StateClosed {
		return 1
	}
	return 0
}

func printSettings(s *config.Settings) {
	o := &s.Options
	slog.Info("interface, %v", o.Interface)
	slog.Info("capture-filter, %v", o.Filter)
	slog.Info("write, %v", o.SavePath)
	slog.Info("autostop, %v", s.AutostopArgs)
	slog.Info("ring-buffer, %v", s.RingArgs)
	slog.Info("in-process, %v", s.InProcess || !launcher.Supported)
}

func adjustLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		slog.SetLevel(slog.DebugLevel)
		return
	case "info":
		slog.SetLevel(slog.InfoLevel)
		return
	case "warn":
		slog.SetLevel(slog.WarnLevel)
		return
	case "error":
		slog.SetLevel(slog.ErrorLevel)
		return
	}
	logLevel := os.Getenv("SIMPLE_LOG_LEVEL")
	if len(logLevel) > 0 {
		return
	}
	slog.SetLevel(slog.InfoLevel)
}
