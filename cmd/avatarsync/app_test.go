package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/face"
	"github.com/normanking/avatarsync/internal/scheduler"
	"github.com/normanking/avatarsync/internal/stream"
)

func TestRenderLoop_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu     sync.Mutex
		deltas []time.Duration
	)
	done := make(chan struct{})
	go func() {
		renderLoop(ctx, 200, time.Millisecond, func(d time.Duration) {
			mu.Lock()
			deltas = append(deltas, d)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deltas) >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("render loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, d := range deltas {
		assert.LessOrEqual(t, d, time.Millisecond, "delta not clamped")
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestBar(t *testing.T) {
	assert.Equal(t, "░░░░", bar(0, 4))
	assert.Equal(t, "██░░", bar(0.5, 4))
	assert.Equal(t, "████", bar(3, 4))
	assert.Equal(t, "░░░░", bar(-1, 4))
}

func TestMeter_DrawsParametersAndCaption(t *testing.T) {
	var out bytes.Buffer
	m := newMeter(&out)

	m.onFrame(scheduler.Frame{Params: scheduler.NewParameterSet([]string{"bass", "mouthOpen"}, []float64{1, 0})})
	m.onCaption(caption.State{WordIndex: 1, WordCount: 3, Word: "ominous"})
	m.finish()

	s := out.String()
	assert.Contains(t, s, "bass")
	assert.Contains(t, s, "mouthOpen")
	assert.Contains(t, s, strings.Repeat("█", meterWidth))
	assert.Contains(t, s, "ominous")
	assert.Contains(t, s, "2/3")
	assert.True(t, strings.HasSuffix(s, "\n"))
}

const headModel = `{
  "asset": {"version": "2.0"},
  "accessors": [
    {"componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"componentType": 5126, "count": 3, "type": "VEC3"},
    {"componentType": 5126, "count": 3, "type": "VEC3"},
    {"componentType": 5126, "count": 3, "type": "VEC3"}
  ],
  "meshes": [{
    "extras": {"targetNames": ["cheekPuff", "jawOpen", "eyeWideLeft"]},
    "primitives": [{
      "attributes": {"POSITION": 0},
      "targets": [{"POSITION": 1}, {"POSITION": 2}, {"POSITION": 3}]
    }]
  }]
}`

func sceneApp() *app {
	return &app{
		shader:     face.NewFaceShader(800, 600),
		background: face.NewBackground(),
		mouth:      face.NewMouth(),
		rig:        face.NewRig(),
	}
}

func TestApp_SceneCarriesRenderTargets(t *testing.T) {
	a := sceneApp()
	frame := scheduler.Frame{
		Elapsed: 100 * time.Millisecond,
		Params:  scheduler.NewParameterSet([]string{"bass", "mid", "treble", "mouthOpen"}, []float64{0.8, 0.4, 0.2, 0.5}),
	}
	a.shader.Apply(frame)
	a.background.Apply(frame)
	a.mouth.Apply(frame)
	a.rig.Apply(frame)
	a.rig.Update(10)

	sc := a.scene()
	assert.InDelta(t, 0.8, sc.Face["uBass"], 1e-6)
	assert.Equal(t, mgl32.Vec2{800, 600}, sc.Face["uResolution"])
	assert.Contains(t, sc.Background, "amplitude")
	assert.Len(t, sc.Mouth.Positions, face.MouthVertexCount)
	assert.Len(t, sc.Mouth.Normals, face.MouthVertexCount)
	assert.NotEmpty(t, sc.Mouth.Indices)
	assert.InDelta(t, 0.5, sc.Rig["jawOpen"], 1e-4)
	assert.Empty(t, sc.Morph)

	path := filepath.Join(t.TempDir(), "head.gltf")
	require.NoError(t, os.WriteFile(path, []byte(headModel), 0644))
	_, err := a.rig.BindMorphTargets(path)
	require.NoError(t, err)

	sc = a.scene()
	require.Len(t, sc.Morph, 3)
	assert.InDelta(t, 0.5, sc.Morph[1], 1e-4)
}

func TestApp_ForwardsSessionLifecycle(t *testing.T) {
	a := sceneApp()
	a.hub = stream.NewHub(zerolog.Nop())
	defer a.hub.Close()

	server := httptest.NewServer(a.hub)
	defer server.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	events := bus.NewEventBus()
	unsub := events.SubscribeMultiple(sessionEvents, a.forwardSession)
	defer unsub()
	events.PublishSync(bus.Event{
		Type:      bus.EventTypeSessionFailed,
		SessionID: "s1",
		Data:      map[string]any{"from": "priming", "to": "failed", "error": "decode audio: bad header"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg stream.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, stream.TypeSession, msg.Type)
	require.NotNil(t, msg.Session)
	assert.Equal(t, stream.SessionUpdate{ID: "s1", State: "failed", Error: "decode audio: bad header"}, *msg.Session)
}
