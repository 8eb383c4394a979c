package selector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/transcribe"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/abadojack/whatlanggo"
)

const systemPrompt = `You are a precise and efficient video clipping assistant.

Given a transcript of a video and a user request, extract the time intervals that best match the intent of the request.

Give just enough context for a viewer to follow what is happening and leave out filler. Separate clips only when the topic, speaker or scene clearly shifts, and keep the number of clips small.

Return only a list of timestamp objects in this exact format:
[{"start": 12.4, "end": 54.6}, {"start": 110.2, "end": 132.0}]

Do not add any explanation or commentary.`

// Chatter is the part of the LLM client the selector needs.
type Chatter interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// Selector asks a language model which stretches of a transcript satisfy an
// instruction.
type Selector struct {
	mu                 sync.RWMutex
	chat               Chatter
	defaultInstruction string
}

func New(chat Chatter, defaultInstruction string) *Selector {
	return &Selector{chat: chat, defaultInstruction: defaultInstruction}
}

// Update swaps the model client and default instruction, e.g. after a
// settings change. A nil chat keeps the current client.
func (s *Selector) Update(chat Chatter, defaultInstruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat != nil {
		s.chat = chat
	}
	if strings.TrimSpace(defaultInstruction) != "" {
		s.defaultInstruction = defaultInstruction
	}
}

func (s *Selector) SelectRanges(ctx context.Context, transcript []transcribe.Segment, instruction string) ([]jobs.TimeRange, error) {
	s.mu.RLock()
	chat := s.chat
	if strings.TrimSpace(instruction) == "" {
		instruction = s.defaultInstruction
	}
	s.mu.RUnlock()

	reply, err := chat.SimpleChat(ctx, buildPrompt(transcript, instruction), systemPrompt)
	if err != nil {
		return nil, cliperr.WrapError(err, cliperr.ErrSelectionFailed, "segment selection request failed")
	}
	log.Debug("Selector reply: %s", reply)

	ranges, err := ParseRanges(reply)
	if err != nil {
		return nil, cliperr.WrapError(err, cliperr.ErrSelectionFailed, "model returned no usable time ranges")
	}
	log.Info("Selector picked %d ranges", len(ranges))
	return ranges, nil
}

func buildPrompt(transcript []transcribe.Segment, instruction string) string {
	var b strings.Builder
	if lang := detectLanguage(transcript); lang != "" {
		fmt.Fprintf(&b, "The transcript is in %s.\n\n", lang)
	}
	b.WriteString("Here is the transcript of the video, one line per segment:\n")
	for _, seg := range transcript {
		fmt.Fprintf(&b, "[%.1f - %.1f] %s\n", seg.Start, seg.End, seg.Text)
	}
	fmt.Fprintf(&b, "\nInstructions: %s\n\n", instruction)
	b.WriteString("Identify the most relevant time intervals in the video based on the instructions. ")
	b.WriteString(`Return only the timestamps in this exact format: [{"start": 12.4, "end": 54.6}, ...]`)
	return b.String()
}

// detectLanguage names the transcript language, or "" when detection is not
// reliable.
func detectLanguage(transcript []transcribe.Segment) string {
	var b strings.Builder
	for _, seg := range transcript {
		b.WriteString(seg.Text)
		b.WriteByte(' ')
		if b.Len() > 4000 {
			break
		}
	}
	info := whatlanggo.Detect(b.String())
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.String()
}
