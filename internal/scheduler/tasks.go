package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadRespond = "lead:respond"

const TaskEmailProcess = "email:process"

const TaskLeadAdFetch = "leadads:fetch"

type LeadRespondPayload struct {
	TenantID     string `json:"tenantId"`
	LeadID       string `json:"leadId"`
	SkipResponse bool   `json:"skipResponse,omitempty"`
}

type EmailProcessPayload struct {
	TenantID string `json:"tenantId"`
	EmailID  string `json:"emailId"`
}

type LeadAdFetchPayload struct {
	LeadgenID string `json:"leadgenId"`
	PageID    string `json:"pageId"`
	FormID    string `json:"formId,omitempty"`
}

func NewLeadRespondTask(payload LeadRespondPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadRespond, data), nil
}

func ParseLeadRespondPayload(task *asynq.Task) (LeadRespondPayload, error) {
	var payload LeadRespondPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadRespondPayload{}, err
	}
	return payload, nil
}

func NewEmailProcessTask(payload EmailProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailProcess, data), nil
}

func ParseEmailProcessPayload(task *asynq.Task) (EmailProcessPayload, error) {
	var payload EmailProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EmailProcessPayload{}, err
	}
	return payload, nil
}

func NewLeadAdFetchTask(payload LeadAdFetchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadAdFetch, data), nil
}

func ParseLeadAdFetchPayload(task *asynq.Task) (LeadAdFetchPayload, error) {
	var payload LeadAdFetchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadAdFetchPayload{}, err
	}
	return payload, nil
}
