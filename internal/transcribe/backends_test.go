package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestParseWhisperJSON(t *testing.T) {
	raw := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"}, "offsets": {"from": 0, "to": 2500}, "text": " Hello."},
			{"timestamps": {"from": "00:00:02,500", "to": "00:00:04,120"}, "offsets": {"from": 2500, "to": 4120}, "text": " World."}
		]
	}`)

	tr, err := parseWhisperJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, []Segment{
		{Text: " Hello.", Start: 0, End: 2.5},
		{Text: " World.", Start: 2.5, End: 4.12},
	}, tr.Segments)

	_, err = parseWhisperJSON([]byte(`{"transcription": [`))
	require.Error(t, err)
}

func TestWhisperCpp_Args(t *testing.T) {
	w := NewWhisperCpp("whisper-cli", "/models/base.bin", language.Japanese)
	assert.Equal(t, []string{
		"-m", "/models/base.bin",
		"-f", "/w/input.wav",
		"-oj",
		"-of", "/w/input",
		"-l", "ja",
	}, w.args("/w/input.wav", "/w/input"))
}

func TestWhisperCpp_TranscribeRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "whisper-cli")
	// writes a canned result to "<value of -of>.json"
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then shift; out="$1"; fi
  shift
done
echo '{"transcription":[{"offsets":{"from":1000,"to":3000},"text":" hi"}]}' > "$out.json"
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	wav := filepath.Join(dir, "input.wav")
	tr, err := NewWhisperCpp(bin, "model.bin", language.English).Transcribe(context.Background(), wav)
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Text: " hi", Start: 1, End: 3}}, tr.Segments)
	assert.NoFileExists(t, filepath.Join(dir, "input.json"))
}

func TestOpenAI_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))
		if _, header, err := r.FormFile("file"); assert.NoError(t, err) {
			assert.Equal(t, "input.wav", header.Filename)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"language": "english",
			"segments": []map[string]any{
				{"start": 0.0, "end": 4.2, "text": " First."},
				{"start": 4.2, "end": 9.0, "text": " Second."},
			},
		})
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))

	tr, err := NewOpenAI("sk-test", srv.URL+"/v1/", "whisper-1", language.English, time.Second).Transcribe(context.Background(), wav)
	require.NoError(t, err)
	assert.Equal(t, "english", tr.Language)
	assert.Equal(t, []Segment{
		{Text: " First.", Start: 0, End: 4.2},
		{Text: " Second.", Start: 4.2, End: 9},
	}, tr.Segments)
}

func TestOpenAI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid file format"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	wav := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))

	_, err := NewOpenAI("k", srv.URL, "whisper-1", language.Und, time.Second).Transcribe(context.Background(), wav)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai http 400")
}
