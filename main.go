package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/term"

	"clack/config"
	"clack/doctor"
	"clack/keyboard"
	"clack/log"
	"clack/mixer"
	"clack/output"
	"clack/shutdown"
	"clack/sound"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFlag := fs.String("config", "", "Config file (default: $XDG_CONFIG_HOME/clack/config.toml)")
	backendFlag := fs.String("backend", "", "Audio backend: pulse, malgo, or oto")
	deviceFlag := fs.String("device", "", "Comma-separated keyboard devices, e.g. /dev/input/event3 (default: auto-detect)")
	sinkFlag := fs.String("sink", "", "Output device id as shown by -list (default: system default)")
	volumeFlag := fs.Float64("volume", -1, "Playback volume, 0.0 to 1.0")
	voicesFlag := fs.Int("voices", 0, "Maximum overlapping sounds before the oldest is cut")
	logPathFlag := fs.String("logpath", "", "log directory path (default: $XDG_STATE_HOME/clack, use ./ for current dir)")
	verboseFlag := fs.Bool("verbose", false, "Also write diagnostics to stderr")
	listFlag := fs.Bool("list", false, "List keyboards and output devices and exit")
	doctorFlag := fs.Bool("doctor", false, "Run system diagnostics and exit")
	exportFlag := fs.String("export", "", "Write every sound layer as a WAV file into this directory and exit")
	saveConfigFlag := fs.Bool("save-config", false, "Write the effective settings to the config file and exit")
	versionFlag := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "clack %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.Init(*verboseFlag); err != nil {
		fmt.Fprintf(stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	initCrashLog()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if *backendFlag != "" {
		cfg.Output.Backend = *backendFlag
	}
	if *sinkFlag != "" {
		cfg.Output.Device = *sinkFlag
	}
	if *deviceFlag != "" {
		cfg.Input.Devices = strings.Split(*deviceFlag, ",")
	}
	if *volumeFlag >= 0 {
		cfg.Mixer.Volume = *volumeFlag
	}
	if *voicesFlag != 0 {
		cfg.Mixer.Voices = *voicesFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *saveConfigFlag {
		path := *configFlag
		if path == "" {
			path = config.ConfigPath()
		}
		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(stderr, "Error: failed to save config: %v\n", err)
			return 1
		}
		log.Infof("config saved to %s", path)
		fmt.Fprintf(stdout, "Saved %s\n", path)
		return 0
	}

	if *listFlag {
		return listDevices(stdout, cfg.Output.Backend)
	}

	outCfg := cfg.OutputSettings()
	outCfg.SampleRate = sound.SampleRate

	if *doctorFlag {
		return doctor.Run(outCfg)
	}

	bank, err := sound.NewBank(sound.SampleRate)
	if err != nil {
		log.Errorf("sound bank: %v", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *exportFlag != "" {
		paths, err := bank.ExportWAV(*exportFlag)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, p := range paths {
			fmt.Fprintln(stdout, p)
		}
		return 0
	}

	src, err := keyboard.Open(cfg.Input.Devices...)
	if err != nil {
		log.Errorf("keyboard open error: %v", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	sink, err := output.Open(outCfg)
	if err != nil {
		src.Close()
		log.Errorf("output open error: %v", err)
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		return 1
	}

	var names []string
	for _, d := range src.Devices() {
		names = append(names, d.Path)
		log.Infof("keyboard: %s (%s)", d.Name, d.Path)
	}
	log.Infof("output: backend=%s device=%q latency=%s", outCfg.Backend, outCfg.Device, outCfg.Latency)
	log.SessionStart(outCfg.Backend, names, cfg.Mixer.Voices, cfg.Mixer.Volume)

	interactive := isTerminal(stdout)
	if interactive {
		for _, d := range src.Devices() {
			fmt.Fprintf(stdout, "Using: %s (%s)\n", d.Name, d.Path)
		}
		fmt.Fprintln(stdout, "Type anywhere - press Ctrl+C here to stop.")
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	summary, err := runSession(ctx, session{
		src:  src,
		sink: sink,
		mix:  mixer.New(cfg.MixerSettings()),
		bank: bank,
	})
	log.SessionEnd(summary)

	if err != nil {
		log.Error(describe(err))
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		if id := log.SessionID(); id != "" {
			fmt.Fprintf(stderr, "Details in %s (session %s)\n", filepath.Join(log.Dir(), "diagnostics_log.txt"), id)
		}
		return exitCode(err)
	}
	log.Info("session stopped")
	if interactive {
		fmt.Fprintf(stdout, "\nStopped. %s\n", summary)
	}
	return 0
}

func listDevices(w io.Writer, backend string) int {
	status := 0

	keyboards, err := keyboard.List()
	if err != nil {
		fmt.Fprintf(w, "keyboards: %v\n", err)
		status = 1
	}
	fmt.Fprintln(w, "Keyboards:")
	for _, d := range keyboards {
		fmt.Fprintf(w, "  %s\t%s\n", d.Path, d.Name)
	}

	devices, err := output.Devices(backend)
	if err != nil {
		fmt.Fprintf(w, "output devices: %v\n", err)
		status = 1
	}
	fmt.Fprintf(w, "Output devices (%s):\n", backend)
	for _, d := range devices {
		fmt.Fprintf(w, "  %s\t%s\n", d.ID, d.Name)
	}
	return status
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// initCrashLog sends runtime crash output to crash_log.txt next to the
// diagnostics log.
func initCrashLog() {
	if log.Dir() == "" {
		return
	}
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}
