package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"clubpay/internal/broker"
)

// DeclareTopology creates every topic the topology names. Existing topics
// are left untouched; the names of newly created topics are returned.
func DeclareTopology(ctx context.Context, client *kgo.Client, topology *broker.Topology) ([]string, error) {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, topology.Partitions, topology.ReplicationFactor, nil, topology.Topics()...)
	if err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}

	var created []string
	var errs []error
	for _, r := range resp.Sorted() {
		switch {
		case r.Err == nil:
			created = append(created, r.Topic)
		case errors.Is(r.Err, kerr.TopicAlreadyExists):
		default:
			errs = append(errs, fmt.Errorf("create topic %s: %w", r.Topic, r.Err))
		}
	}
	return created, errors.Join(errs...)
}
