package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"ecochat/audio"
	"ecochat/backend"
	"ecochat/beep"
	"ecochat/chat"
	"ecochat/config"
	"ecochat/doctor"
	"ecochat/encoder"
	"ecochat/gesture"
	"ecochat/hotkey"
	"ecochat/log"
	"ecochat/recorder"
	"ecochat/shutdown"
)

var version = "dev"

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "mic: system default"
	}
	return "mic: " + dev.Name
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	formatFlag := flag.String("format", "", "Upload format: "+strings.Join(encoder.Names(), ", ")+" (default "+config.DefaultFormat+")")
	hotkeyFlag := flag.String("hotkey", hotkey.DefaultBinding, "Global push-to-talk hotkey")
	apiFlag := flag.String("api", "", "Backend base URL (default "+config.DefaultBaseURL+")")
	envFlag := flag.String("env", ".env", "Environment file to load if present")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	clearLogsFlag := flag.Bool("clear-logs", false, "Clear the backend conversation logs and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("ecochat %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*envFlag)
	if err == nil && *apiFlag != "" {
		cfg.API.BaseURL = strings.TrimRight(*apiFlag, "/")
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if *formatFlag != "" {
		cfg.Audio.Format = strings.ToLower(*formatFlag)
	}
	if *logPathFlag != "" {
		cfg.LogPath = *logPathFlag
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	format, err := encoder.Lookup(cfg.Audio.Format)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	binding, err := hotkey.Parse(*hotkeyFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	client := backend.New(cfg.API.BaseURL,
		backend.WithToken(cfg.API.Token),
		backend.WithTimeout(cfg.API.Timeout),
	)

	if *clearLogsFlag {
		os.Exit(clearBackendLogs(context.Background(), client))
	}

	if *doctorFlag {
		os.Exit(doctor.Run(doctor.Options{
			Client: client,
			Device: cfg.Audio.Device,
			Format: format,
			Hotkey: binding,
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	} else {
		log.SessionStart(cfg.API.BaseURL, format.Name)
	}
	defer log.Close()

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: ecochat -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], client, format, cfg.Gesture.CancelDistance)
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if *setupFlag && cfg.Audio.Device == "" {
		device, err = audio.SelectDevice(actx)
	} else {
		device, err = audio.FindDevice(actx, cfg.Audio.Device)
	}
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Printf("Warning: device selection failed: %v\n", err)
		fmt.Println("Falling back to default device")
		device = nil
	}

	go beep.Init()

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	bridge := newTUIBridge()
	sess := chat.NewSession(client, func() { bridge.post(chatChangedMsg{}) })
	rec := recorder.New(recorder.Config{
		Audio:        actx,
		Device:       device,
		Format:       format,
		Transcriber:  client,
		Sink:         tuiSink{post: bridge.post},
		OnTranscript: sess.SetInput,
	})
	mic := gesture.NewController(ctx, rec, cfg.Gesture.CancelDistance)

	hotkeyLine := binding.String() + " to talk"
	if hk, err := registerHotkey(binding); err != nil {
		log.Warnf("hotkey %s unavailable: %v", binding, err)
		hotkeyLine = "hotkey unavailable (mouse only)"
	} else {
		defer hk.Unregister()
		go hotkey.Hold(ctx, hk, mic)
	}

	p := newTUIProgram(newTUIModel(ctx, sess, mic, tuiOptions{
		DeviceLine: deviceLineText(device),
		HotkeyLine: hotkeyLine,
	}))
	go bridge.run(ctx, p)
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}

	cancel()
	closeSession(mic, rec, sess)
}

// closeSession tears the widget down. The recorder is closed before the
// gesture ends so a capture still held open is discarded, not uploaded.
func closeSession(mic *gesture.Controller, rec *recorder.Session, sess *chat.Session) {
	rec.Close()
	mic.Terminate()
	mic.Wait()
	rec.Wait()
	sess.Close()
}

// clearBackendLogs asks the backend to drop its stored conversations and
// returns the process exit code.
func clearBackendLogs(ctx context.Context, client *backend.Client) int {
	if err := client.ClearLogs(ctx); err != nil {
		fmt.Printf("Error: clearing backend logs: %v\n", err)
		return 1
	}
	fmt.Printf("Backend logs cleared (%s)\n", client.BaseURL())
	return 0
}

func registerHotkey(b hotkey.Binding) (hotkey.Hotkey, error) {
	hk, err := hotkey.New(b)
	if err != nil {
		return nil, err
	}
	if err := hk.Register(); err != nil {
		return nil, err
	}
	return hk, nil
}
