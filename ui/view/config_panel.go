package view

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/guard-overlay-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// ConfigPanel encapsulates the configuration form widgets and apply logic.
// It owns its widgets and writes back into *config.Config on ApplyChanges.
type ConfigPanel interface {
	Build(startRow int) (endRow int) // constructs widgets starting at startRow, returns next free row
	SetEditable(enabled bool)
	ApplyChanges() // parses widget text into underlying config and persists
}

type configPanel struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	onApply  func(*config.Config)
	applyBtn *ButtonWidget
	widgets  map[string]*TextWidget // keyed by internal field id
}

// NewConfigPanel creates the view bound to cfg. onApply, when set, receives
// the saved config so running components can pick it up without waiting for
// the file watcher.
func NewConfigPanel(cfg *config.Config, cfgPath string, logger *slog.Logger, onApply func(*config.Config)) ConfigPanel {
	return &configPanel{cfg: cfg, cfgPath: cfgPath, logger: logger, onApply: onApply, widgets: make(map[string]*TextWidget)}
}

func (v *configPanel) Build(startRow int) (row int) {
	c := v.cfg
	row = startRow
	// Two columns of label/field pairs keep the window short.
	col := 0
	makeRow := func(id, label, value string) {
		lbl := Label(Txt(label), Anchor("w"))
		Grid(lbl, Row(row), Column(col), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(16))
		Grid(w, Row(row), Column(col+1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Delete("1.0", END)
		w.Insert("1.0", value)
		v.widgets[id] = w
		if col == 0 {
			col = 2
			return
		}
		col = 0
		row++
	}
	makeRow("captureIntervalMs", "Capture Interval ms", strconv.Itoa(c.CaptureIntervalMs))
	makeRow("audioQuietMs", "Audio Quiet ms", strconv.Itoa(c.AudioQuietMs))
	makeRow("errorCooldownMs", "Error Cooldown ms", strconv.Itoa(c.ErrorCooldownMs))
	makeRow("maskHoldMs", "Mask Hold ms", strconv.Itoa(c.MaskHoldMs))
	makeRow("gateOn", "Gate ON (0-1)", fmt.Sprintf("%.2f", c.GateOn))
	makeRow("gateOff", "Gate OFF (< ON)", fmt.Sprintf("%.2f", c.GateOff))
	makeRow("scoreFloor", "Score Floor", fmt.Sprintf("%.2f", c.ScoreFloor))
	makeRow("keywordConfidence", "Keyword Confidence", fmt.Sprintf("%.2f", c.KeywordConfidence))
	makeRow("maskMode", "Mask Mode (roi/lines)", c.MaskMode)
	makeRow("maskStyle", "Mask Style (opaque/mosaic)", c.MaskStyle)
	makeRow("alertTone", "Alert Tone (true/false)", fmt.Sprintf("%t", c.AlertTone))
	makeRow("moderationURL", "Moderation URL", c.ModerationURL)
	if col != 0 {
		row++
	}
	v.applyBtn = Button(Txt("Apply Changes"), Command(func() { v.ApplyChanges() }))
	Grid(v.applyBtn, Row(row), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	row++
	return row
}

func (v *configPanel) SetEditable(enabled bool) {
	state := "disabled"
	if enabled {
		state = "normal"
	}
	for _, w := range v.widgets {
		if w != nil {
			w.Configure(State(state))
		}
	}
	if v.applyBtn != nil {
		v.applyBtn.Configure(State(state))
	}
}

func (v *configPanel) text(id string) (string, bool) {
	w := v.widgets[id]
	if w == nil {
		return "", false
	}
	return strings.TrimSpace(strings.Join(w.Get("1.0", END), "")), true
}

func (v *configPanel) ApplyChanges() {
	if v.cfg == nil {
		return
	}
	cfg := *v.cfg // copy
	fields := map[string]string{}
	for id := range v.widgets {
		if s, ok := v.text(id); ok {
			fields[id] = s
		}
	}
	ApplyFields(&cfg, fields)
	if verr := cfg.Validate(); verr != nil {
		return
	}
	*v.cfg = cfg
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
		return
	}
	if v.logger != nil {
		v.logger.Info("config saved", "path", v.cfgPath)
	}
	if v.onApply != nil {
		v.onApply(v.cfg)
	}
}

// ApplyFields copies parseable form values into cfg. Unparseable values keep
// the current setting; Validate clamps the rest.
func ApplyFields(cfg *config.Config, fields map[string]string) {
	assignInt := func(id string, dst *int) {
		if i, ok := parseIntField(fields[id]); ok {
			*dst = i
		}
	}
	assignFloat := func(id string, dst *float64) {
		if f, ok := parseFloatField(fields[id]); ok {
			*dst = f
		}
	}
	assignInt("captureIntervalMs", &cfg.CaptureIntervalMs)
	assignInt("audioQuietMs", &cfg.AudioQuietMs)
	assignInt("errorCooldownMs", &cfg.ErrorCooldownMs)
	assignInt("maskHoldMs", &cfg.MaskHoldMs)
	assignFloat("gateOn", &cfg.GateOn)
	assignFloat("gateOff", &cfg.GateOff)
	assignFloat("scoreFloor", &cfg.ScoreFloor)
	assignFloat("keywordConfidence", &cfg.KeywordConfidence)
	if b, ok := parseBoolLoose(fields["alertTone"]); ok {
		cfg.AlertTone = b
	}
	if s := strings.ToLower(fields["maskMode"]); s != "" {
		cfg.MaskMode = s
	}
	if s := strings.ToLower(fields["maskStyle"]); s != "" {
		cfg.MaskStyle = s
	}
	if s, ok := fields["moderationURL"]; ok {
		cfg.ModerationURL = s
	}
}

// parsing helpers (unexported)
func parseFloatField(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
func parseIntField(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return i, true
}
func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, true
	case "false", "0", "no", "n", "off", "f":
		return false, true
	default:
		return false, false
	}
}
