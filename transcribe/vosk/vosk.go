// Package vosk adapts the Vosk offline speech recognition engine to the
// transcribe decoder seam. It is the only package that links against the
// native library; everything else tests against fakes.
package vosk

import (
	"encoding/json"
	"fmt"
	"os"

	voskapi "github.com/alphacep/vosk-api/go"

	"github.com/onnwee/stream-scribe/transcribe"
)

// Factory loads a Vosk model directory once and mints per-file recognizers.
// The loaded model is read-only and safe to share across supervisors.
type Factory struct {
	model *voskapi.VoskModel
}

// NewFactory loads the model. A missing or malformed model directory is a
// ModelLoad recognition error.
func NewFactory(modelDir string) (*Factory, error) {
	if info, err := os.Stat(modelDir); err != nil || !info.IsDir() {
		return nil, &transcribe.RecognitionError{Kind: transcribe.ModelLoad, Err: fmt.Errorf("model directory %q not found", modelDir)}
	}
	model, err := voskapi.NewModel(modelDir)
	if err != nil {
		return nil, &transcribe.RecognitionError{Kind: transcribe.ModelLoad, Err: fmt.Errorf("load model %q: %w", modelDir, err)}
	}
	return &Factory{model: model}, nil
}

func (f *Factory) NewDecoder(sampleRate int) (transcribe.Decoder, error) {
	rec, err := voskapi.NewRecognizer(f.model, float64(sampleRate))
	if err != nil {
		return nil, &transcribe.RecognitionError{Kind: transcribe.ModelLoad, Err: err}
	}
	rec.SetWords(1)
	return &decoder{rec: rec}, nil
}

func (f *Factory) Close() error {
	f.model.Free()
	return nil
}

type decoder struct {
	rec *voskapi.VoskRecognizer
}

func (d *decoder) Accept(chunk []byte) (transcribe.Result, bool, error) {
	switch d.rec.AcceptWaveform(chunk) {
	case 1: // end of utterance
		res, err := parseResult(d.rec.Result())
		return res, true, err
	case 0:
		return transcribe.Result{}, false, nil
	default:
		return transcribe.Result{}, false, &transcribe.RecognitionError{Kind: transcribe.Decode, Err: fmt.Errorf("recognizer rejected waveform chunk")}
	}
}

func (d *decoder) Final() (transcribe.Result, error) {
	return parseResult(d.rec.FinalResult())
}

func (d *decoder) Close() error {
	d.rec.Free()
	return nil
}

// parseResult maps Vosk's word-level JSON to decoder words.
func parseResult(raw string) (transcribe.Result, error) {
	var body struct {
		Result []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Word  string  `json:"word"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return transcribe.Result{}, &transcribe.RecognitionError{Kind: transcribe.Decode, Err: fmt.Errorf("parse recognizer result: %w", err)}
	}
	res := transcribe.Result{}
	for _, w := range body.Result {
		res.Words = append(res.Words, transcribe.Word{Start: w.Start, End: w.End, Text: w.Word})
	}
	return res, nil
}
