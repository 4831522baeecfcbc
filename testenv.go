package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ecochat/audio"
	"ecochat/backend"
	"ecochat/beep"
	"ecochat/chat"
	"ecochat/encoder"
	"ecochat/gesture"
	"ecochat/hotkey"
	"ecochat/log"
	"ecochat/recorder"
)

const testWaitLimit = 30 * time.Second

// runTestMode drives the chat and capture stack from stdin commands with
// the microphone replaced by a WAV file.
func runTestMode(wavPath string, client *backend.Client, format encoder.Format, threshold float64) {
	beep.Disable()

	fakeCtx, err := audio.LoadFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &printSink{}
	sess := chat.NewSession(client, nil)
	rec := recorder.New(recorder.Config{
		Audio:       fakeCtx,
		Format:      format,
		Transcriber: client,
		Sink:        out,
		OnTranscript: func(text string) {
			sess.SetInput(text)
			out.printf("transcript %s", text)
		},
	})
	mic := gesture.NewController(ctx, rec, threshold)

	hk := hotkey.NewFake()
	hk.Register()
	go hotkey.Hold(ctx, hk, mic)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "CATEGORY":
			cat, err := chat.ParseCategory(arg)
			if err != nil {
				out.printf("error %v", err)
				continue
			}
			if err := sess.SelectCategory(ctx, cat); err != nil {
				out.printf("error %v", err)
			}
		case "TYPE":
			sess.SetInput(arg)
		case "SEND":
			if err := sess.Submit(ctx); err != nil {
				out.printf("error %v", err)
			}
		case "PRESS", "MOVE":
			x, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				out.printf("error bad position %q", arg)
				continue
			}
			if cmd == "PRESS" {
				mic.Press(x)
			} else {
				mic.Move(x)
			}
		case "RELEASE":
			mic.Release()
		case "KEYDOWN":
			hk.SimKeydown()
		case "KEYUP":
			hk.SimKeyup()
		case "WAIT":
			waitIdle(mic, rec)
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "BACK":
			sess.Back(ctx)
		case "SHOW":
			printSnapshot(out, sess.Snapshot(), mic.State())
		case "QUIT":
			shutdownTestMode(mic, rec, sess)
			return
		case "":
		default:
			out.printf("error unknown command %q", cmd)
		}
	}
	shutdownTestMode(mic, rec, sess)
}

// waitIdle returns once the gesture is idle and every capture it started
// has been uploaded.
func waitIdle(mic *gesture.Controller, rec *recorder.Session) {
	deadline := time.Now().Add(testWaitLimit)
	for mic.State() != gesture.StateIdle && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	mic.Wait()
	rec.Wait()
}

func printSnapshot(out *printSink, snap chat.Snapshot, state gesture.State) {
	for _, m := range snap.Messages {
		out.printf("%s: %s", m.Sender, m.Text)
	}
	out.printf("category=%s typing=%t gesture=%s input=%q", snap.Category, snap.Typing, state, snap.Input)
}

func shutdownTestMode(mic *gesture.Controller, rec *recorder.Session, sess *chat.Session) {
	closeSession(mic, rec, sess)
	log.Info("test_mode_done")
}
