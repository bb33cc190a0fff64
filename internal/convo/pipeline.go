package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/omkarlalla-code/kiosk-project/internal/catalog"
	"github.com/omkarlalla-code/kiosk-project/internal/control"
	"github.com/omkarlalla-code/kiosk-project/internal/dispatch"
	"github.com/omkarlalla-code/kiosk-project/internal/observe"
	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts/cache"
)

// ErrSessionNotFound is returned for turns against unknown or ended sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrUpstreamLLM is returned when the language model call fails or times
// out. The turn is dropped; the session stays active.
var ErrUpstreamLLM = errors.New("upstream llm failure")

// Sessions is the slice of the session registry the pipeline needs. The
// registry satisfies it; tests inject stubs.
type Sessions interface {
	// Active reports whether id names an active session.
	Active(id string) bool

	// Refresh resets the session's inactivity timer.
	Refresh(id string)

	// RoomOf returns the datachannel room of an active session.
	RoomOf(id string) (string, error)
}

// Config holds the pipeline timing knobs, all in server-timeline
// milliseconds unless noted.
type Config struct {
	// AnchorLeadMS is the pre-roll between scheduling and speech start.
	AnchorLeadMS int64

	// PreloadLeadMS is how far ahead of its show instant a preload is
	// dispatched.
	PreloadLeadMS int64

	// ShowCrossfadeMS is the crossfade duration carried on img_show.
	ShowCrossfadeMS int64

	// PreloadTTLMS is the renderable lifetime carried on img_preload.
	PreloadTTLMS int64

	// LLMTimeout bounds the language model call per turn.
	LLMTimeout time.Duration

	// TTSTimeout bounds synthesis per turn.
	TTSTimeout time.Duration
}

// TurnResult is the outcome of one successful conversation turn.
type TurnResult struct {
	// AssistantText is the spoken reply text shown in the conversation UI.
	AssistantText string

	// Audio is the complete synthesised audio, empty when TTSError is set.
	Audio []byte

	// ContentType tags the audio bytes ("audio/mpeg" or "audio/wav").
	ContentType string

	// ImagesScheduled counts timeline events dispatched to the datachannel.
	ImagesScheduled int

	// EndChat reports that the model ended the conversation.
	EndChat bool

	// TTSError reports that synthesis failed and the client should render
	// silently. Visuals are still scheduled.
	TTSError bool
}

// Pipeline orchestrates one conversation turn: language model, structured
// reply parsing, synthesis through the audio cache, image resolution, and
// timeline scheduling. Turns on the same session are serialised; turns on
// different sessions run in parallel.
type Pipeline struct {
	cfg      Config
	sessions Sessions
	provider llm.Provider
	synth    tts.Synthesizer
	resolver *catalog.Resolver
	router   *dispatch.Router
	history  *History
	metrics  *observe.Metrics

	mu    sync.Mutex
	turns map[string]*sync.Mutex
}

// New creates a Pipeline. synth is normally the cache-fronted tiered
// synthesiser; metrics may be nil in tests.
func New(cfg Config, sessions Sessions, provider llm.Provider, synth tts.Synthesizer,
	resolver *catalog.Resolver, router *dispatch.Router, history *History, metrics *observe.Metrics) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		sessions: sessions,
		provider: provider,
		synth:    synth,
		resolver: resolver,
		router:   router,
		history:  history,
		metrics:  metrics,
		turns:    make(map[string]*sync.Mutex),
	}
}

// Discard releases the per-session state the pipeline holds: the transcript
// and the turn serialisation lock. Wire it to the registry's end callback.
func (p *Pipeline) Discard(sessionID string) {
	p.history.Discard(sessionID)
	p.mu.Lock()
	delete(p.turns, sessionID)
	p.mu.Unlock()
}

// turnLock returns the per-session turn mutex, creating it on first use.
func (p *Pipeline) turnLock(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.turns[sessionID]
	if !ok {
		l = &sync.Mutex{}
		p.turns[sessionID] = l
	}
	return l
}

// Converse runs one turn. Concurrent calls for the same session queue; the
// transcript is never interleaved.
//
// A language model failure drops the turn with [ErrUpstreamLLM]. A
// synthesis failure degrades the turn: assistant text and visuals still go
// out, the audio payload is empty, and TTSError is set.
func (p *Pipeline) Converse(ctx context.Context, sessionID, userText string) (TurnResult, error) {
	start := time.Now()

	if !p.sessions.Active(sessionID) {
		p.countError(ctx, "session_not_found")
		return TurnResult{}, ErrSessionNotFound
	}

	lock := p.turnLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the turn lock: the session may have ended while this
	// turn queued behind another.
	if !p.sessions.Active(sessionID) {
		p.countError(ctx, "session_not_found")
		return TurnResult{}, ErrSessionNotFound
	}
	p.sessions.Refresh(sessionID)

	reply, err := p.askModel(ctx, sessionID, userText)
	if err != nil {
		p.countError(ctx, "upstream_llm")
		return TurnResult{}, fmt.Errorf("%w: %w", ErrUpstreamLLM, err)
	}

	p.history.Append(sessionID,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: reply.SpeechResponse},
	)

	res := TurnResult{
		AssistantText: reply.SpeechResponse,
		EndChat:       reply.EndChat,
	}

	audio, audioErr := p.synthesise(ctx, reply.SpeechResponse)
	if audioErr != nil {
		p.countError(ctx, "tts_error")
		res.TTSError = true
		slog.Warn("turn: synthesis failed, continuing without audio",
			"session_id", sessionID, "err", audioErr)
	} else {
		res.Audio = audio.Audio
		res.ContentType = audio.ContentType
	}

	// Visuals are scheduled even without audio: the client can display
	// silently against the same anchor.
	speechStart := p.router.Now() + p.cfg.AnchorLeadMS
	res.ImagesScheduled = p.scheduleTimeline(ctx, sessionID, speechStart, reply.TimelineEvents)

	if reply.EndChat {
		p.scheduleEndChat(sessionID, speechStart, res)
	}

	if p.metrics != nil {
		observe.RecordStage(ctx, p.metrics.TurnDuration, time.Since(start).Seconds())
	}
	return res, nil
}

// askModel runs the bounded language model call and parses the reply.
func (p *Pipeline) askModel(ctx context.Context, sessionID, userText string) (Reply, error) {
	llmCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	llmStart := time.Now()
	raw, err := p.provider.Chat(llmCtx, sessionID, p.history.Snapshot(sessionID), userText)
	if p.metrics != nil {
		observe.RecordStage(ctx, p.metrics.LLMDuration, time.Since(llmStart).Seconds())
	}
	if err != nil {
		return Reply{}, err
	}

	reply := ParseReply(raw)
	if reply.Degraded {
		slog.Warn("turn: reply parse failed, degrading to plain text",
			"session_id", sessionID)
	}
	return reply, nil
}

// synthesise runs the bounded synthesis call through the cache.
func (p *Pipeline) synthesise(ctx context.Context, text string) (tts.Result, error) {
	ttsCtx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
	defer cancel()

	ttsStart := time.Now()
	res, err := p.synth.Synthesize(ttsCtx, text)
	if p.metrics != nil {
		observe.RecordStage(ctx, p.metrics.TTSDuration, time.Since(ttsStart).Seconds(),
			attribute.String("tier", res.Tier))
		if err == nil {
			outcome := "miss"
			if res.Tier == cache.HitTier {
				outcome = "hit"
			} else {
				p.metrics.SynthInvocations.Add(ctx, 1,
					metric.WithAttributes(attribute.String("tier", res.Tier)))
			}
			p.metrics.TTSCacheLookups.Add(ctx, 1,
				metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
	return res, err
}

// scheduleTimeline resolves each event and arms its preload and show
// dispatches, returning the number of events scheduled. An unresolved
// reference degrades to the resolver's fallback descriptor; only a gone
// session drops events.
func (p *Pipeline) scheduleTimeline(ctx context.Context, sessionID string, speechStart int64, events []TimelineEvent) int {
	if len(events) == 0 {
		return 0
	}
	roomID, err := p.sessions.RoomOf(sessionID)
	if err != nil {
		slog.Debug("turn: session gone before scheduling, dropping timeline",
			"session_id", sessionID, "events", len(events))
		return 0
	}

	now := p.router.Now()
	scheduled := 0
	for _, ev := range events {
		if ev.Action.Type != ActionPreloadImage {
			slog.Warn("turn: unknown timeline action skipped",
				"session_id", sessionID, "type", ev.Action.Type)
			continue
		}

		desc, matched := p.resolver.Resolve(ev.Action.Payload)
		if !matched {
			slog.Warn("turn: image reference unresolved, using fallback",
				"session_id", sessionID, "ref", ev.Action.Payload.ID, "fallback", desc.ID)
		}

		showAt := speechStart + ev.TimeOffsetMS
		preloadAt := showAt - p.cfg.PreloadLeadMS
		if preloadAt < now {
			preloadAt = now
		}

		// The preload's playout_ts is its own dispatch instant, not the
		// show instant: the client learns its clock offset from the first
		// time-bearing message it receives.
		p.schedule(ctx, roomID, control.Message{
			Type:      control.TypeImgPreload,
			ID:        desc.ID,
			CDNURL:    desc.CDNURL,
			PlayoutTS: preloadAt,
			TTLMS:     p.cfg.PreloadTTLMS,
		}, preloadAt)

		p.schedule(ctx, roomID, control.Message{
			Type:       control.TypeImgShow,
			ID:         desc.ID,
			PlayoutTS:  showAt,
			Transition: "crossfade",
			DurationMS: p.cfg.ShowCrossfadeMS,
			Caption:    desc.Title,
		}, showAt)

		scheduled++
	}
	return scheduled
}

// scheduleEndChat arms the end_chat dispatch for the end of speech. Without
// audio the estimate is zero and the signal lands on the anchor itself.
func (p *Pipeline) scheduleEndChat(sessionID string, speechStart int64, res TurnResult) {
	roomID, err := p.sessions.RoomOf(sessionID)
	if err != nil {
		return
	}
	speechMS := tts.EstimateDuration(res.Audio, res.ContentType).Milliseconds()
	p.schedule(context.Background(), roomID, control.Message{
		Type: control.TypeEndChat,
	}, speechStart+speechMS)
}

// schedule hands one message to the router and counts it.
func (p *Pipeline) schedule(ctx context.Context, roomID string, msg control.Message, atTS int64) {
	p.router.Schedule(roomID, msg, atTS)
	if p.metrics != nil {
		p.metrics.ScheduledMessages.Add(ctx, 1,
			metric.WithAttributes(attribute.String("type", string(msg.Type))))
	}
}

// countError increments the turn error counter by kind.
func (p *Pipeline) countError(ctx context.Context, kind string) {
	if p.metrics == nil {
		return
	}
	p.metrics.TurnErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}
