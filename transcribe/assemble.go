package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SidecarExt is appended to the recording base name to form the transcript path.
const SidecarExt = ".transcript.json"

// Segment is a contiguous span of recognized (or silent) audio. Text is empty
// for spans where the model flagged speech but decoded no words.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the assembled, immutable result for one recording.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"`
}

// Assemble merges segments into a transcript. Text space-joins the non-empty
// segment texts in order; empty segments stay in the list to preserve
// timeline continuity.
func Assemble(segments []Segment) Transcript {
	t := Transcript{Segments: segments}
	if t.Segments == nil {
		t.Segments = []Segment{}
	}
	var parts []string
	for _, s := range segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	t.Text = strings.Join(parts, " ")
	return t
}

// WriteSidecar persists the transcript atomically: a reader never observes a
// half-written file because the temp file is renamed into place.
func (t Transcript) WriteSidecar(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename transcript into place: %w", err)
	}
	return nil
}

// ReadSidecar parses a persisted transcript.
func ReadSidecar(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return t, nil
}

// SidecarPath returns the transcript path for a recording: same base name,
// SidecarExt extension, same directory.
func SidecarPath(recordingPath string) string {
	base := strings.TrimSuffix(recordingPath, filepath.Ext(recordingPath))
	return base + SidecarExt
}

// WAVPath returns the intermediate waveform path for a recording.
func WAVPath(recordingPath string) string {
	base := strings.TrimSuffix(recordingPath, filepath.Ext(recordingPath))
	return base + ".wav"
}
