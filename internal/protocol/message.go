// Package protocol defines the WebSocket message types exchanged with
// the monitoring uplink.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Monitor messages
	TypeDetection MessageType = "detection" // Above-threshold classifier hit
	TypeAlert     MessageType = "alert"     // Alert pulse issued
	TypeState     MessageType = "state"     // Mode / mute change
	TypeBattery   MessageType = "battery"   // Battery warning

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// DetectionData reports one above-threshold classifier result
type DetectionData struct {
	Confidence float64 `json:"confidence"`
	AzimuthDeg float64 `json:"azimuth_deg"`
	DirConf    float64 `json:"dir_conf"`
	PeakFreqHz float64 `json:"peak_freq_hz,omitempty"`
}

// NewDetectionMessage creates a detection message
func NewDetectionMessage(confidence, azimuthDeg, dirConf, peakFreqHz float64) (*Message, error) {
	return NewMessage(TypeDetection, DetectionData{
		Confidence: confidence,
		AzimuthDeg: azimuthDeg,
		DirConf:    dirConf,
		PeakFreqHz: peakFreqHz,
	})
}

// AlertData reports an issued alert pulse
type AlertData struct {
	Confidence float64 `json:"confidence"`
	AzimuthDeg float64 `json:"azimuth_deg"`
	Muted      bool    `json:"muted"`
}

// NewAlertMessage creates an alert message
func NewAlertMessage(confidence, azimuthDeg float64, muted bool) (*Message, error) {
	return NewMessage(TypeAlert, AlertData{
		Confidence: confidence,
		AzimuthDeg: azimuthDeg,
		Muted:      muted,
	})
}

// StateData reports the device operating state
type StateData struct {
	Mode  string `json:"mode"`
	Muted bool   `json:"muted"`
}

// NewStateMessage creates a state message
func NewStateMessage(mode string, muted bool) (*Message, error) {
	return NewMessage(TypeState, StateData{Mode: mode, Muted: muted})
}

// BatteryData reports a battery warning
type BatteryData struct {
	Voltage  float64 `json:"voltage"`
	Critical bool    `json:"critical"`
}

// NewBatteryMessage creates a battery message
func NewBatteryMessage(voltage float64, critical bool) (*Message, error) {
	return NewMessage(TypeBattery, BatteryData{Voltage: voltage, Critical: critical})
}

// GetDetectionData extracts detection data from a message
func (m *Message) GetDetectionData() (*DetectionData, error) {
	var data DetectionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
