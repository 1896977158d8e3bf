package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

// fakeServer emulates the stream-input endpoint and /v1/voices.
type fakeServer struct {
	mu       sync.Mutex
	received []map[string]any
	apiKeys  []string
	voices   []string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/text-to-speech/{voice}/stream-input", func(w http.ResponseWriter, r *http.Request) {
		voice := r.PathValue("voice")
		f.mu.Lock()
		f.voices = append(f.voices, voice)
		f.apiKeys = append(f.apiKeys, r.Header.Get("xi-api-key"))
		f.mu.Unlock()

		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		for range 3 {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			f.mu.Lock()
			f.received = append(f.received, m)
			f.mu.Unlock()
		}

		if voice == "retired-voice" {
			_ = conn.Write(ctx, websocket.MessageText, []byte(
				`{"message":"A voice with voice_id retired-voice does not exist.","error":"voice_not_found","code":1008}`))
			conn.Close(websocket.StatusPolicyViolation, "voice_not_found")
			return
		}

		for _, chunk := range [][]byte{{1, 0, 2, 0}, {3, 0}} {
			b, _ := json.Marshal(map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk), "isFinal": false})
			_ = conn.Write(ctx, websocket.MessageText, b)
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"audio":null,"isFinal":true}`))
		conn.Close(websocket.StatusNormalClosure, "")
	})
	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"abc123","name":"Rachel","category":"premade","labels":{"gender":"female"}},
			{"voice_id":"def456","name":"Adam","category":"premade","labels":{}}]}`))
	})
	return mux
}

func newTestProvider(t *testing.T) (*Provider, *fakeServer) {
	t.Helper()
	f := &fakeServer{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, f
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	p, f := newTestProvider(t)
	speech, err := p.Synthesize(context.Background(), tts.Request{Text: "Tell me about yourself.", VoiceID: "officer"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := speech.Audio; len(got) != 6 || got[0] != 1 || got[4] != 3 {
		t.Errorf("audio = %v, want [1 0 2 0 3 0]", got)
	}
	if speech.Format.SampleRate != 16000 || speech.Format.Channels != 1 {
		t.Errorf("format = %s, want 16000Hz mono", speech.Format)
	}
	if speech.Voice != "officer" || speech.Provider != "elevenlabs" {
		t.Errorf("voice/provider = %q/%q", speech.Voice, speech.Provider)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) != 3 {
		t.Fatalf("server received %d messages, want 3", len(f.received))
	}
	if f.received[0]["xi_api_key"] != "test-key" {
		t.Errorf("BOI missing api key: %v", f.received[0])
	}
	if txt, _ := f.received[1]["text"].(string); !strings.Contains(txt, "Tell me about yourself.") {
		t.Errorf("text message = %v", f.received[1])
	}
	if f.received[2]["text"] != "" {
		t.Errorf("end-of-input message = %v, want empty text", f.received[2])
	}
	if f.apiKeys[0] != "test-key" {
		t.Errorf("xi-api-key header = %q", f.apiKeys[0])
	}
}

func TestSynthesize_VoiceNotFound(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello", VoiceID: "retired-voice"})
	if !errors.Is(err, tts.ErrVoiceInvalid) {
		t.Fatalf("err = %v, want ErrVoiceInvalid", err)
	}
}

func TestSynthesize_EmptyVoiceUsesSafeDefault(t *testing.T) {
	t.Parallel()

	p, f := newTestProvider(t)
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voices[0] != SafeVoice || p.DefaultVoice() != SafeVoice {
		t.Errorf("voice = %q, want %q", f.voices[0], SafeVoice)
	}
}

func TestSynthesize_RejectsBlankText(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "   "}); err == nil {
		t.Error("expected error for blank text")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "abc123" || voices[0].Metadata["category"] != "premade" || voices[0].Metadata["gender"] != "female" {
		t.Errorf("voice[0] = %+v", voices[0])
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("k", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM format")
	}
	p, err := New("k", WithOutputFormat("pcm_24000"), WithModel("eleven_turbo_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate = %d, want 24000", p.sampleRate)
	}
	u := p.streamURL("voice-abc123")
	if !strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?") ||
		!strings.Contains(u, "model_id=eleven_turbo_v2") {
		t.Errorf("streamURL = %s", u)
	}
}
