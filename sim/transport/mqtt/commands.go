package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandType is the last segment of a command topic.
type CommandType string

const (
	CommandAcknowledge CommandType = "ack"
	CommandCondition   CommandType = "condition"
	CommandStop        CommandType = "stop"
)

// AckCommand acknowledges an alert.
type AckCommand struct {
	AlertID string `json:"alert_id"`
	Actor   string `json:"actor"`
	Notes   string `json:"notes,omitempty"`
}

// ConditionCommand switches a patient's condition.
type ConditionCommand struct {
	PatientID string `json:"patient_id"`
	Condition string `json:"condition"`
}

// StopCommand stops one patient's generation task.
type StopCommand struct {
	PatientID string `json:"patient_id"`
}

// Commander executes operator commands.
type Commander interface {
	Acknowledge(alertID, actor, notes string) error
	SetCondition(patientID, condition string) error
	StopPatient(patientID string) error
}

// CommandHandler decodes messages on <commands_topic>/<type> and dispatches them to cmd.
func CommandHandler(cmd Commander) MessageHandler {
	return func(topic string, payload []byte) error {
		kind := CommandType(topic[strings.LastIndex(topic, "/")+1:])
		switch kind {
		case CommandAcknowledge:
			var c AckCommand
			if err := json.Unmarshal(payload, &c); err != nil {
				return fmt.Errorf("decoding %s command: %w", kind, err)
			}
			return cmd.Acknowledge(c.AlertID, c.Actor, c.Notes)
		case CommandCondition:
			var c ConditionCommand
			if err := json.Unmarshal(payload, &c); err != nil {
				return fmt.Errorf("decoding %s command: %w", kind, err)
			}
			return cmd.SetCondition(c.PatientID, c.Condition)
		case CommandStop:
			var c StopCommand
			if err := json.Unmarshal(payload, &c); err != nil {
				return fmt.Errorf("decoding %s command: %w", kind, err)
			}
			return cmd.StopPatient(c.PatientID)
		}
		return fmt.Errorf("unknown command %q", kind)
	}
}

// SubscribeCommands routes <commands_topic>/+ to cmd.
func (c *Client) SubscribeCommands(cmd Commander) error {
	return c.Subscribe(c.cfg.CommandsTopic+"/+", CommandHandler(cmd))
}
