package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingCommander struct {
	calls []string
}

func (r *recordingCommander) Acknowledge(id, actor, notes string) error {
	r.calls = append(r.calls, "ack:"+id+":"+actor+":"+notes)
	return nil
}

func (r *recordingCommander) SetCondition(patientID, condition string) error {
	r.calls = append(r.calls, "condition:"+patientID+":"+condition)
	return nil
}

func (r *recordingCommander) StopPatient(patientID string) error {
	if patientID == "" {
		return errors.New("patient_id required")
	}
	r.calls = append(r.calls, "stop:"+patientID)
	return nil
}

func TestCommandHandler_Dispatch(t *testing.T) {
	rc := &recordingCommander{}
	h := CommandHandler(rc)

	assert.NoError(t, h("wearables/commands/ack", []byte(`{"alert_id":"a1","actor":"nurse","notes":"ok"}`)))
	assert.NoError(t, h("wearables/commands/condition", []byte(`{"patient_id":"p1","condition":"sepsis"}`)))
	assert.NoError(t, h("wearables/commands/stop", []byte(`{"patient_id":"p1"}`)))

	assert.Equal(t, []string{"ack:a1:nurse:ok", "condition:p1:sepsis", "stop:p1"}, rc.calls)
}

func TestCommandHandler_Errors(t *testing.T) {
	h := CommandHandler(&recordingCommander{})
	assert.Error(t, h("wearables/commands/reboot", []byte(`{}`)))
	assert.Error(t, h("wearables/commands/ack", []byte(`not json`)))
	assert.Error(t, h("wearables/commands/stop", []byte(`{}`)))
}
