package domain

import "time"

// Sample is a single normalized telemetry observation taken once per tick.
type Sample struct {
	Timestamp         time.Time `json:"ts"`
	DistinctPeerCount int       `json:"distinct_peer_count"`
	BandwidthBPS      float64   `json:"bandwidth_bps"`
	DailyBytesTotal   int64     `json:"daily_bytes_total"`
	DailyUniquePeers  int       `json:"daily_unique_peers"`
}
