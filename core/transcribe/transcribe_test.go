package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"pitwall/config"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "HAM_44_20230528_153012.mp3")
	if err := os.WriteFile(p, []byte("ID3fake"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "ID3fake" || !strings.HasSuffix(hdr.Filename, ".mp3") {
			t.Errorf("upload = %q %s", data, hdr.Filename)
		}
		w.Write([]byte(`{"text":"  Box box, box box.  "}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1/", "sk-test", "whisper-1", "en")
	text, err := c.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Box box, box box." {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "sk-test", "whisper-1", "")
	_, err := c.Transcribe(context.Background(), writeAudio(t))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v", err)
	}
}

func fakeWhisper(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	p := filepath.Join(t.TempDir(), "whisper")
	if err := os.WriteFile(p, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWhisperCLI(t *testing.T) {
	bin := fakeWhisper(t, `#!/bin/sh
in="$1"; shift
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_dir" ]; then out="$2"; fi
  shift
done
name=$(basename "$in")
printf ' Copy, tyres are gone. \n' > "$out/${name%.*}.txt"
`)
	w := NewWhisperCLI(bin, "turbo", "en")
	text, err := w.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Copy, tyres are gone." {
		t.Errorf("text = %q", text)
	}
}

func TestWhisperCLIFailure(t *testing.T) {
	bin := fakeWhisper(t, "#!/bin/sh\necho 'model not found' >&2\nexit 3\n")
	_, err := NewWhisperCLI(bin, "turbo", "").Transcribe(context.Background(), writeAudio(t))
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v", err)
	}
}

func TestNew(t *testing.T) {
	if tr, err := New(&config.Config{Transcriber: "whisper"}); err != nil {
		t.Errorf("whisper: %v", err)
	} else if _, ok := tr.(*WhisperCLI); !ok {
		t.Errorf("whisper backend = %T", tr)
	}
	if _, err := New(&config.Config{Transcriber: "openai"}); err == nil {
		t.Error("openai without key should fail")
	}
	if _, err := New(&config.Config{Transcriber: "vosk"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
