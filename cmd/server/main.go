package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/connorodea/medscribd/internal/agent"
	"github.com/connorodea/medscribd/internal/audio"
	"github.com/connorodea/medscribd/internal/config"
	"github.com/connorodea/medscribd/internal/coordinator"
	"github.com/connorodea/medscribd/internal/httpserver"
	"github.com/connorodea/medscribd/internal/noteapi"
	"github.com/connorodea/medscribd/internal/recordings"
	"github.com/connorodea/medscribd/internal/router"
	"github.com/connorodea/medscribd/internal/session"
	"github.com/connorodea/medscribd/internal/skills"
	"github.com/connorodea/medscribd/internal/store"
)

const (
	captureSampleRate = 48000
	captureFrames     = 960 // 20ms at 48 kHz

	listenModel = "nova-3"
	thinkModel  = "gpt-4o-mini"
	speakModel  = "aura-2-thalia-en"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	st, err := store.Open(cfg.DataPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	scheduling := skills.NewSchedulingReducer(st)
	drugDispatch := skills.NewDrugDispatchReducer(st)
	clinicalNote := skills.NewClinicalNoteReducer(st)

	sess := session.New()
	player := audio.NewPlayer(audio.PlaybackSampleRate)
	recorder := newVisitRecorder(cfg)

	settings := agent.SettingsMessage{
		Type: agent.TypeSettings,
		Audio: agent.AudioConfig{
			Input:  agent.AudioFormat{Encoding: "linear16", SampleRate: audio.WireSampleRate},
			Output: agent.AudioFormat{Encoding: "linear16", SampleRate: audio.PlaybackSampleRate, Container: "none"},
		},
		Agent: agent.AgentConfig{
			Language: "en",
			Listen:   agent.ListenConfig{Provider: agent.Provider{Type: "deepgram", Model: listenModel}},
			Think: agent.ThinkConfig{
				Provider:  agent.Provider{Type: "open_ai", Model: thinkModel},
				Prompt:    skills.Prompt(skills.None),
				Functions: skills.AllDefinitions(),
			},
			Speak:    agent.SpeakConfig{Provider: agent.Provider{Type: "deepgram", Model: speakModel}},
			Greeting: skills.Greeting,
		},
	}

	// The transport's callbacks close over the router and coordinator, which
	// in turn need the transport as responder and prompter. Declare first,
	// assign after construction; no callback fires before Open.
	var (
		rt    *router.Router
		coord *coordinator.Coordinator
	)
	transport := agent.NewTransport(cfg.AgentURL, cfg.DeepgramKey, settings, agent.Events{
		OnStatus: func(msgType string) {
			sess.ApplySignal(msgType)
			if msgType == agent.TypeUserStartedSpeaking {
				player.Reset()
			}
		},
		OnTranscript: func(role, content string) {
			coord.ObserveTranscript(role, content)
		},
		OnFunctionCall: func(req agent.FunctionCallRequest) {
			rt.HandleRequest(req)
		},
		OnAudio: player.WritePCM,
		OnReconnect: func() {
			rt.DropPending()
		},
		OnDisconnect: func(err error) {
			log.Printf("agent connection lost for good: %v", err)
			sess.Disconnect()
			rt.DropPending()
		},
	})
	rt = router.New(transport)
	coord = coordinator.New(sess, rt, transport, map[skills.Skill]coordinator.Reducer{
		skills.ClinicalNote: clinicalNote,
		skills.DrugDispatch: drugDispatch,
		skills.Scheduling:   scheduling,
	})

	pipeline := audio.NewPipeline(captureSampleRate, sess.AllowsAudio, func(frame []byte) {
		recorder.append(frame)
		if err := transport.SendAudio(frame); err != nil {
			log.Printf("send audio frame: %v", err)
		}
	})
	capture := audio.NewCaptureSource(captureSampleRate, captureFrames, pipeline.Process)

	if cfg.DeepgramKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := transport.Open(ctx)
		cancel()
		if err != nil {
			log.Printf("voice agent unavailable: %v", err)
			sess.Disconnect()
		} else {
			sess.Connected()
			defer transport.Close()
			if err := player.Start(); err != nil {
				log.Printf("audio playback unavailable: %v", err)
			}
			if err := capture.Start(); err != nil {
				log.Printf("audio capture unavailable: %v", err)
			} else {
				defer capture.Stop()
				sess.StartListening()
			}
		}
	}

	var noteClient *noteapi.Client
	if cfg.NoteAPIBaseURL != "" {
		noteClient = noteapi.New(cfg.NoteAPIBaseURL)
	}

	e := httpserver.New()
	httpserver.Handlers{
		Session:      sess,
		Switcher:     coord,
		Voice:        transport,
		Scheduling:   scheduling,
		DrugDispatch: drugDispatch,
		ClinicalNote: clinicalNote,
		NoteAPI:      noteClient,
	}.Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	recorder.flush()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// visitRecorder keeps a copy of every transmitted frame and pushes the whole
// visit recording to object storage at shutdown. Upload failures are logged,
// never fatal; the session does not depend on storage.
type visitRecorder struct {
	storage   *recordings.Storage
	sessionID string
	started   time.Time

	mu  sync.Mutex
	pcm []byte
}

func newVisitRecorder(cfg config.Config) *visitRecorder {
	r := &visitRecorder{sessionID: uuid.NewString(), started: time.Now()}
	storage, err := recordings.New(recordings.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("visit recording disabled: %v", err)
		return r
	}
	r.storage = storage
	return r
}

func (r *visitRecorder) append(frame []byte) {
	if r.storage == nil {
		return
	}
	r.mu.Lock()
	r.pcm = append(r.pcm, frame...)
	r.mu.Unlock()
}

func (r *visitRecorder) flush() {
	if r.storage == nil {
		return
	}
	r.mu.Lock()
	pcm := r.pcm
	r.pcm = nil
	r.mu.Unlock()
	if len(pcm) == 0 {
		return
	}
	key := recordings.Key(r.sessionID, r.started)
	if err := r.storage.Upload(key, pcm); err != nil {
		log.Printf("upload visit recording: %v", err)
		return
	}
	log.Printf("visit recording uploaded: %s (%d bytes)", key, len(pcm))
}
