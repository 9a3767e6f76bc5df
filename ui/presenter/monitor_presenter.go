package presenter

// MonitorModel provides enabled state access.
type MonitorModel interface {
	Enabled() bool
	SetEnabled(bool)
}

// StreamControl narrows what the presenter needs from the pipeline runner.
type StreamControl interface {
	Start()
	Stop()
}

// MonitorView updates UI elements affected by monitoring toggling.
// Stage labels are owned by StagePresenter; this presenter never touches them.
type MonitorView interface {
	PreviewReset()
	ConfigEditable(bool)
	SetMonitoring(bool)
}

// MonitorPresenter owns presentation logic for starting and stopping both streams.
type MonitorPresenter struct {
	model   MonitorModel
	streams StreamControl
	view    MonitorView
}

func NewMonitorPresenter(model MonitorModel, streams StreamControl, view MonitorView) *MonitorPresenter {
	return &MonitorPresenter{model: model, streams: streams, view: view}
}

// Enable starts the streams and locks the config panel. Idempotent.
func (c *MonitorPresenter) Enable() {
	if c == nil || c.model == nil || c.streams == nil || c.view == nil {
		return
	}
	if c.model.Enabled() {
		return
	}
	c.streams.Start()
	c.model.SetEnabled(true)
	c.view.ConfigEditable(false)
	c.view.SetMonitoring(true)
}

// Disable stops the streams, which tears down any mask, and resets the preview. Idempotent.
func (c *MonitorPresenter) Disable() {
	if c == nil || c.model == nil || c.streams == nil || c.view == nil {
		return
	}
	if !c.model.Enabled() {
		return
	}
	c.streams.Stop()
	c.model.SetEnabled(false)
	c.view.PreviewReset()
	c.view.ConfigEditable(true)
	c.view.SetMonitoring(false)
}

// Toggle flips enabled state delegating to Enable/Disable.
func (c *MonitorPresenter) Toggle() {
	if c == nil || c.model == nil {
		return
	}
	if c.model.Enabled() {
		c.Disable()
		return
	}
	c.Enable()
}
