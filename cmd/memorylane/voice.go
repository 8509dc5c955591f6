package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memorylane-ai/memorylane/pkg/core/audio"
	"github.com/memorylane-ai/memorylane/pkg/core/audio/device"
	"github.com/memorylane-ai/memorylane/pkg/core/extract"
	"github.com/memorylane-ai/memorylane/pkg/core/recording"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/stt"
	"github.com/memorylane-ai/memorylane/pkg/core/speech/tts"
	"github.com/memorylane-ai/memorylane/pkg/core/voiceloop"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Run a live voice recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := loggerFromViper()
			slog.SetDefault(logger)

			mixed, _ := cmd.Flags().GetBool("mixed")
			owner, _ := cmd.Flags().GetString("owner")
			if owner == "" {
				owner = viper.GetString("owner")
			}
			if owner == "" {
				owner = "local-" + ulid.Make().String()
			}

			// The session must outlive the interrupt signal so the save
			// question can still be answered.
			runCtx, cancel := context.WithCancel(context.Background())
			defer cancel()

			store, err := openStore(runCtx, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			geminiKey, err := requireString("gemini.api_key")
			if err != nil {
				return err
			}
			completer, err := extract.NewGeminiCompleter(runCtx, geminiKey)
			if err != nil {
				return err
			}

			cartesiaKey, err := requireString("cartesia.api_key")
			if err != nil {
				return err
			}
			transcriber := stt.NewCartesia(cartesiaKey)
			synth := tts.NewCartesia(cartesiaKey)

			engineCfg := audio.DefaultEngineConfig()

			system, err := device.NewSystem(engineCfg.Audio)
			if err != nil {
				return err
			}
			defer system.Close()

			stream, err := transcriber.NewStream(runCtx, stt.StreamOptions{
				SampleRate: engineCfg.Audio.SampleRate,
			})
			if err != nil {
				return err
			}
			defer stream.Close()

			mic := &teeCapture{
				inner: system.Microphone(),
				tap:   func(pcm []byte) { _ = stream.SendAudio(pcm) },
			}

			manager := recording.NewManager(func() *audio.Engine {
				return audio.NewEngine(engineCfg, mic,
					audio.WithSecondaryDevice(system.Loopback()),
					audio.WithPlayback(system.Speaker()),
					audio.WithLogger(logger),
				)
			}, store, logger)

			session, err := manager.Start(runCtx, owner, recording.ModeVoiceLoop, audio.StartOptions{
				EnableSecondaryCapture: mixed,
			})
			if err != nil {
				return err
			}

			vcfg := voiceloop.DefaultConfig()
			if v := viper.GetString("voice.id"); v != "" {
				vcfg.Voice = v
			}

			controller := voiceloop.NewController(vcfg, session, completer, synth, store, logger)
			controller.Start(runCtx)

			go func() {
				for delta := range stream.Deltas() {
					controller.OnTranscript(delta.Text)
				}
			}()

			logger.Info("voice session started", "owner_id", owner, "session_id", session.ID)

			select {
			case <-sigCtx.Done():
				controller.Terminate()
				select {
				case <-controller.Done():
				case <-time.After(30 * time.Second):
					logger.Warn("session did not finalize in time")
				}
			case <-controller.Done():
			}

			if result := controller.Result(); result != nil {
				fmt.Printf("Saved recording %s: %s\n", result.SessionID, result.Summary)
			}
			return nil
		},
	}

	cmd.Flags().Bool("mixed", true, "Capture agent audio alongside the microphone.")
	cmd.Flags().String("owner", "", "Owner id for the session.")

	return cmd
}

// teeCapture forwards frames to the mixing engine and to the live
// transcription stream.
type teeCapture struct {
	inner audio.CaptureDevice
	tap   func([]byte)
}

func (t *teeCapture) Start(ctx context.Context, onFrame audio.FrameFunc) error {
	return t.inner.Start(ctx, func(pcm []byte) {
		onFrame(pcm)
		t.tap(pcm)
	})
}

func (t *teeCapture) Stop() error { return t.inner.Stop() }
