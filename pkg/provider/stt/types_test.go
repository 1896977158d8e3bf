package stt

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestRequest_Audio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		b64     string
		want    string
		wantErr error
	}{
		{name: "empty", b64: "", wantErr: ErrEmptyAudio},
		{name: "payload", b64: base64.StdEncoding.EncodeToString([]byte("OggS")), want: "OggS"},
		{name: "not base64", b64: "!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Request{AudioBase64: tt.b64}.Audio()
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.want == "":
				if err == nil {
					t.Error("expected decode error")
				}
			default:
				if err != nil || string(got) != tt.want {
					t.Errorf("Audio = %q, %v; want %q", got, err, tt.want)
				}
			}
		})
	}
}

func TestRequest_FileNameAndLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime, lang     string
		wantFile       string
		wantBaseLang string
	}{
		{mime: "audio/ogg; codecs=opus", lang: "en-US", wantFile: "recording.ogg", wantBaseLang: "en"},
		{mime: "audio/wav", lang: "DE", wantFile: "recording.wav", wantBaseLang: "de"},
		{mime: "audio/webm;codecs=opus", lang: "", wantFile: "recording.webm", wantBaseLang: ""},
		{mime: "", lang: "pt-BR", wantFile: "recording.wav", wantBaseLang: "pt"},
	}
	for _, tt := range tests {
		r := Request{MIMEType: tt.mime, Language: tt.lang}
		if got := r.FileName(); got != tt.wantFile {
			t.Errorf("FileName(%q) = %q, want %q", tt.mime, got, tt.wantFile)
		}
		if got := r.BaseLanguage(); got != tt.wantBaseLang {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tt.lang, got, tt.wantBaseLang)
		}
	}
}

func TestResult_NoSpeech(t *testing.T) {
	t.Parallel()

	for text, want := range map[string]bool{"": true, " \n\t": true, "yes": false, " ok ": false} {
		if got := (Result{Text: text}).NoSpeech(); got != want {
			t.Errorf("NoSpeech(%q) = %v, want %v", text, got, want)
		}
	}
}
