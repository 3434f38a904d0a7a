package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUnreachable = errors.New("recipient has no usable contact")

type Recipient struct {
	PatientID uuid.UUID
	Name      string
	Phone     string
	Email     string
}

func (r Recipient) Reachable() bool {
	return r.Phone != "" || r.Email != ""
}

type Message struct {
	Subject string
	Body    string
}

// Notifier delivers a message to one recipient. Implementations are best effort.
type Notifier interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}
