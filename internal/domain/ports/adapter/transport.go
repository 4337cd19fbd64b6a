package adapter

import (
	"context"

	"prompt-job-runner/internal/domain/model"
)

// DeliveryMessage is one composed result to deliver. Transports decide how to
// chunk and encode it for their wire format.
type DeliveryMessage struct {
	Title     string
	Body      string
	Citations []Citation
	UsedTool  bool
	Meta      map[string]any
}

// Transport sends one message to a concrete channel. Failures carry
// *domain.DeliveryError with the HTTP status when one was observed.
type Transport interface {
	Kind() model.ChannelType
	Send(ctx context.Context, msg DeliveryMessage) error
}

// TransportResolver builds the transport for a job's channel, decrypting the
// stored channel config. Returns domain.ErrNoRunnableChannel for in-app jobs.
type TransportResolver interface {
	Resolve(job *model.Job) (Transport, error)
}
