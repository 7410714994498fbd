package web

import "github.com/teslashibe/go-gridscan/pkg/feed"

// View is what the dashboard shows. It is rebuilt from display calls and
// broadcast on every change.
type View struct {
	Mode                 string `json:"mode"`
	Selector             string `json:"selector"`
	Interval             int    `json:"interval_s"`
	Countdown            int    `json:"countdown"`
	CountdownVisible     bool   `json:"countdown_visible"`
	ManualControlVisible bool   `json:"manual_control_visible"`
	PulseActive          bool   `json:"pulse_active"`
	Source               string `json:"source,omitempty"`
	SourceReady          bool   `json:"source_ready"`
	FrameWidth           int    `json:"frame_width"`
	FrameHeight          int    `json:"frame_height"`
	Rows                 int    `json:"rows"`

	ChannelConnected  bool                 `json:"channel_connected"`
	Channel           feed.SubscriberStats `json:"channel"`
	DroppedBroadcasts uint64               `json:"dropped_broadcasts"`
}

// ModeRequest selects a capture mode.
type ModeRequest struct {
	Selector string `json:"selector"`
}
