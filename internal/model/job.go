package model

import "fmt"

// Job is the work ticket carried by the queue. It is flattened to string
// key/value pairs so every queue backend can carry it unchanged.
type Job struct {
	MessageID    string `json:"message_id"`
	ClientPhone  string `json:"client_phone"`
	TemplateBody string `json:"template_body"`
}

const (
	jobFieldMessageID    = "message_id"
	jobFieldClientPhone  = "client_phone"
	jobFieldTemplateBody = "template_body"
)

// Fields returns the job as an ordered list of field/value pairs.
func (j Job) Fields() [][2]string {
	return [][2]string{
		{jobFieldMessageID, j.MessageID},
		{jobFieldClientPhone, j.ClientPhone},
		{jobFieldTemplateBody, j.TemplateBody},
	}
}

// JobFromFields rebuilds a job read back from the queue.
func JobFromFields(fields map[string]string) (Job, error) {
	job := Job{
		MessageID:    fields[jobFieldMessageID],
		ClientPhone:  fields[jobFieldClientPhone],
		TemplateBody: fields[jobFieldTemplateBody],
	}
	if job.MessageID == "" {
		return job, fmt.Errorf("job is missing %s", jobFieldMessageID)
	}
	return job, nil
}
