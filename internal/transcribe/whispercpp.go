package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/MimeLyc/clipwave/pkg/file"
	"golang.org/x/text/language"
)

// WhisperCpp runs the whisper.cpp command line tool and reads its JSON output.
type WhisperCpp struct {
	bin      string
	model    string
	language language.Tag
}

func NewWhisperCpp(bin, model string, lang language.Tag) *WhisperCpp {
	return &WhisperCpp{bin: bin, model: model, language: lang}
}

func (*WhisperCpp) Name() string { return "whisper.cpp" }

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *WhisperCpp) Transcribe(ctx context.Context, wavPath string) (Transcript, error) {
	outPrefix := file.ReplaceExt(wavPath, "")
	cmdPath, err := exec.LookPath(w.bin)
	if err != nil {
		return Transcript{}, err
	}

	b, err := exec.CommandContext(ctx, cmdPath, w.args(wavPath, outPrefix)...).CombinedOutput()
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return Transcript{}, err
	}
	return parseWhisperJSON(raw)
}

func (w *WhisperCpp) args(wavPath, outPrefix string) []string {
	args := []string{
		"-m", w.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	if code := languageCode(w.language); code != "" {
		args = append(args, "-l", code)
	}
	return args
}

func parseWhisperJSON(raw []byte) (Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Transcript{}, fmt.Errorf("parse whisper.cpp output: %w", err)
	}

	tr := Transcript{
		Language: out.Result.Language,
		Segments: make([]Segment, 0, len(out.Transcription)),
	}
	for _, seg := range out.Transcription {
		tr.Segments = append(tr.Segments, Segment{
			Text:  seg.Text,
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
		})
	}
	return tr, nil
}
