package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/avatar"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/config"
	"github.com/normanking/avatarsync/internal/face"
	"github.com/normanking/avatarsync/internal/llm"
	"github.com/normanking/avatarsync/internal/logging"
	"github.com/normanking/avatarsync/internal/pipeline"
	"github.com/normanking/avatarsync/internal/stream"
	"github.com/normanking/avatarsync/internal/tts"
)

// app is one running engine: controller, render loop, sinks and the
// optional HTTP endpoints.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	logger zerolog.Logger

	events     *bus.EventBus
	controller *avatar.Controller
	shader     *face.FaceShader
	background *face.Background
	mouth      *face.Mouth
	rig        *face.Rig

	output  *audio.SpeakerOutput
	hub     *stream.Hub
	server  *http.Server
	watcher *config.Watcher
	orch    *pipeline.Orchestrator
	unsubs  []func()
}

// newApp loads configuration and wires the engine. withVoice also builds the
// generator and synthesizer.
func newApp(withVoice bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyPersona()
	if verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logging.New(logging.Config{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Console: cfg.Log.Console})
	if err != nil {
		return nil, err
	}
	logger := log.Zerolog()

	tuning, err := avatar.NewTuning(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	events := bus.NewEventBus()
	controller, err := avatar.NewController(tuning, audio.NewBeepDecoder(logger), events, logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		logger:     logger.With().Str("component", "app").Logger(),
		events:     events,
		controller: controller,
		shader:     face.NewFaceShader(800, 600),
		background: face.NewBackground(),
		mouth:      face.NewMouth(),
		rig:        face.NewRig(),
	}
	a.rig.SetIdle(face.NewIdle(time.Now().UnixNano()))

	if !mute {
		a.output = audio.NewSpeakerOutput(logger)
		controller.SetOutput(a.output)
	}

	a.unsubs = append(a.unsubs,
		controller.Subscribe(a.shader.Apply),
		controller.Subscribe(a.background.Apply),
		controller.Subscribe(a.mouth.Apply),
		controller.Subscribe(a.rig.Apply),
	)

	if withVoice {
		synth, err := tts.New(cfg.Voice, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.orch = pipeline.New(llm.NewChatClient(cfg.LLM, logger), synth, controller, tts.VoiceOptionsFrom(cfg.Voice), events, logger)
	}

	return a, nil
}

// start launches the HTTP endpoints and the config watcher. The render loop
// is run separately by the command.
func (a *app) start() error {
	if a.cfg.Server.Enabled {
		a.hub = stream.NewHub(a.logger)
		a.unsubs = append(a.unsubs,
			a.controller.Subscribe(a.hub.PublishFrame),
			a.controller.SubscribeCaptions(a.hub.PublishCaption),
			a.events.SubscribeMultiple(sessionEvents, a.forwardSession),
		)

		mux := http.NewServeMux()
		mux.Handle(a.cfg.Server.StreamPath, a.hub)
		mux.Handle(a.cfg.Server.MetricsPath, promhttp.Handler())
		a.server = &http.Server{Addr: a.cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("addr", a.cfg.Server.Addr).Msg("Server error")
			}
		}()
		a.logger.Info().
			Str("addr", a.cfg.Server.Addr).
			Str("stream", a.cfg.Server.StreamPath).
			Str("metrics", a.cfg.Server.MetricsPath).
			Msg("Serving renderers")
	}

	path := cfgPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil
		}
	}
	watcher, err := config.Watch(path, a.reload, a.logger)
	if err != nil {
		// no config file to watch is fine
		a.logger.Debug().Err(err).Str("path", path).Msg("Config hot reload disabled")
		return nil
	}
	a.watcher = watcher
	return nil
}

func (a *app) reload(cfg *config.Config) {
	cfg.ApplyPersona()

	tuning, err := avatar.NewTuning(cfg)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Reloaded tuning rejected")
		return
	}
	if err := a.controller.SetTuning(tuning); err != nil {
		a.logger.Warn().Err(err).Msg("Reloaded tuning rejected")
		return
	}
	if a.orch != nil {
		a.orch.SetVoice(tts.VoiceOptionsFrom(cfg.Voice))
	}
	a.events.Publish(bus.Event{Type: bus.EventTypeConfigReloaded, Data: map[string]any{"fft_size": cfg.Analysis.FFTSize}})
}

// render runs the render loop until ctx is done.
func (a *app) render(ctx context.Context) {
	renderLoop(ctx, a.cfg.Render.FPS, a.cfg.Render.MaxDelta, func(delta time.Duration) {
		a.controller.Tick(delta)
		a.rig.Update(float32(delta.Seconds()))
		if a.hub != nil {
			a.hub.PublishScene(a.scene())
		}
	})
}

// scene snapshots every render target for the renderers
func (a *app) scene() stream.Scene {
	faceUniforms, backgroundUniforms := stream.Uniforms{}, stream.Uniforms{}
	a.shader.Uniforms().Upload(faceUniforms)
	a.background.Upload(backgroundUniforms)
	weights := a.rig.Weights()

	return stream.Scene{
		Face:       faceUniforms,
		Background: backgroundUniforms,
		Mouth: stream.Geometry{
			Positions: a.mouth.Positions(),
			Normals:   a.mouth.Normals(),
			Indices:   a.mouth.Indices(),
		},
		Rig:   weights.Map(),
		Morph: a.rig.MorphWeights(),
	}
}

var sessionEvents = []bus.EventType{
	bus.EventTypeSessionPriming,
	bus.EventTypeSessionActive,
	bus.EventTypeSessionCompleted,
	bus.EventTypeSessionCancelled,
	bus.EventTypeSessionFailed,
}

func (a *app) forwardSession(e bus.Event) {
	update := stream.SessionUpdate{ID: e.SessionID}
	update.State, _ = e.Data["to"].(string)
	update.Error, _ = e.Data["error"].(string)
	a.hub.PublishSession(update)
}

func (a *app) close() {
	a.controller.Close()
	for _, unsub := range a.unsubs {
		unsub()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Server shutdown")
		}
	}
	if a.output != nil {
		a.output.Close()
	}
	a.events.Wait()
	if err := a.log.Close(); err != nil {
		fmt.Printf("close log: %v\n", err)
	}
}

// renderLoop calls tick at fps with the real elapsed time, clamped to
// maxDelta so a stall does not skip through the audio.
func renderLoop(ctx context.Context, fps int, maxDelta time.Duration, tick func(time.Duration)) {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			if maxDelta > 0 && delta > maxDelta {
				delta = maxDelta
			}
			tick(delta)
		}
	}
}
