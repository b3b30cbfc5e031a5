package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// Job is one unit of queued webhook-processing work. Retry state lives on
// the record itself so progress would survive externalizing the queue.
type Job struct {
	ID          string                `json:"job_id"`
	TenantID    string                `json:"tenant_id"`
	TenantName  string                `json:"tenant_name"`
	Channel     messaging.ChannelKind `json:"channel"`
	Payload     []byte                `json:"payload"`
	Headers     map[string]string     `json:"headers,omitempty"`
	EnqueuedAt  time.Time             `json:"timestamp"`
	Attempts    int                   `json:"attempts"`
	MaxAttempts int                   `json:"max_attempts"`
}

// NewJob builds a job for a raw webhook delivery.
func NewJob(tenantID, tenantName string, channel messaging.ChannelKind, payload []byte, headers map[string]string) Job {
	return Job{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		TenantName: tenantName,
		Channel:    channel,
		Payload:    payload,
		Headers:    headers,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Header returns a header captured with the webhook delivery.
func (j Job) Header(name string) string {
	if j.Headers == nil {
		return ""
	}
	return j.Headers[name]
}
