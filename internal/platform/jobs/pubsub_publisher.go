package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Yonad91/vital-events-sub002/internal/services"
)

// PubSubCertificatePublisher announces issued certificates on a Pub/Sub topic.
type PubSubCertificatePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCertificatePublisher constructs a Pub/Sub backed issuance publisher.
func NewPubSubCertificatePublisher(topic *pubsub.Topic) (*PubSubCertificatePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub certificate publisher: topic is required")
	}
	return &PubSubCertificatePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCertificateIssued publishes message and waits for the server acknowledgement.
func (p *PubSubCertificatePublisher) PublishCertificateIssued(ctx context.Context, message services.CertificateIssuedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub certificate publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal certificate issued: %w", err)
	}

	attrs := map[string]string{"type": services.CertificateIssuedEventType}
	setAttr(attrs, "certificateId", message.CertificateID)
	setAttr(attrs, "eventId", message.EventID)
	setAttr(attrs, "eventType", string(message.EventType))
	setAttr(attrs, "format", string(message.Format))
	if message.Duplicate {
		attrs["duplicate"] = "true"
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish certificate issued: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
