package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/bscdefi/internal/config"
	"github.com/ggonzalez94/bscdefi/internal/model"
)

func operationEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data: model.OperationResult{
			Status:    model.StatusSuccess,
			Operation: "lista_stake",
			TxHash:    "0xabc",
			Delta:     &model.TokenAmount{Token: "slisBNB", BaseUnits: "99900000000000000", Decimal: "0.0999"},
		},
		Meta: model.EnvelopeMeta{Timestamp: time.Now()},
	}
}

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"a": 1, "b": 2}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: ModeJSON, Select: []string{"a"}, ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"].(float64) != 1 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["b"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectDottedPath(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Mode: ModeJSON, Select: []string{"delta.decimal", "tx_hash"}, ResultsOnly: true}
	if err := Render(&buf, operationEnvelope(), opts); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out["delta.decimal"] != "0.0999" || out["tx_hash"] != "0xabc" || len(out) != 2 {
		t.Fatalf("unexpected projection: %v", out)
	}
}

func TestRenderLinesIsSingleLine(t *testing.T) {
	env := operationEnvelope()
	env.ID = "req-1"
	var buf bytes.Buffer
	if err := Render(&buf, env, Options{Mode: ModeLines}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.ID != "req-1" {
		t.Fatalf("unexpected envelope %+v %v", decoded, err)
	}
}

func TestRenderPlainFlattensNested(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, operationEnvelope(), Options{Mode: ModePlain, ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"delta.decimal=0.0999", "operation=lista_stake", "status=success"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestOptionsFromSettings(t *testing.T) {
	opts := OptionsFrom(config.Settings{OutputMode: "plain", SelectFields: []string{"x"}, ResultsOnly: true})
	if opts.Mode != ModePlain || len(opts.Select) != 1 || !opts.ResultsOnly {
		t.Fatalf("unexpected options %+v", opts)
	}
}
