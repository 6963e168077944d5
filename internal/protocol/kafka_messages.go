// Package protocol carries already-decoded domain messages across the
// Kafka leg of the pipeline. It no longer parses the client wire format
// (that job belongs to pkg/netmsg, which the TCP accept loop speaks
// directly) — this package's job starts where the wire frame ends: a
// decoded netmsg.MetricSample, enriched with the connection's identity
// and wrapped for JSON transport on the broker.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/pkg/netmsg"
)

// MetricMessage is the internal message format published to Kafka for one
// ingested weather-station reading.
type MetricMessage struct {
	ConnectionID string              `json:"connection_id"`
	StationID    string              `json:"station_id"`
	City         string              `json:"city"`
	ReceivedAt   time.Time           `json:"received_at"`
	Sample       netmsg.MetricSample `json:"sample"`
}

// EncodeMetricMessage encodes a MetricMessage to JSON.
func EncodeMetricMessage(msg *MetricMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMetricMessage decodes JSON to MetricMessage.
func DecodeMetricMessage(data []byte) (*MetricMessage, error) {
	var msg MetricMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AlarmNotification is the message format for alarm notifications.
type AlarmNotification struct {
	Type      string    `json:"type"` // ALARM_TRIGGERED, ALARM_CLEARED
	StationID string    `json:"station_id"`
	City      string    `json:"city"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Operator  string    `json:"operator"`
	Duration  int       `json:"duration_minutes"`
	StartTime time.Time `json:"start_time"`
	AlarmID   int64     `json:"alarm_id,omitempty"`
}

const (
	AlarmTypeTriggered = "ALARM_TRIGGERED"
	AlarmTypeCleared   = "ALARM_CLEARED"
)

// EncodeAlarmNotification encodes an AlarmNotification to JSON.
func EncodeAlarmNotification(alarm *AlarmNotification) ([]byte, error) {
	return json.Marshal(alarm)
}

// DecodeAlarmNotification decodes JSON to AlarmNotification.
func DecodeAlarmNotification(data []byte) (*AlarmNotification, error) {
	var alarm AlarmNotification
	if err := json.Unmarshal(data, &alarm); err != nil {
		return nil, err
	}
	return &alarm, nil
}
