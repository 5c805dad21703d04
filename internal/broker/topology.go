package broker

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topology.yaml
var defaultTopology []byte

// DeadLetterSuffix names the per-queue dead-letter topic.
const DeadLetterSuffix = ".dlq"

// Topology declares the exchange, the routing keys published to it and the
// queues bound to them. It is built once at start-up and passed to the
// publisher and the consumers.
type Topology struct {
	Exchange          string   `yaml:"exchange"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
	RoutingKeys       []string `yaml:"routing_keys"`
	Queues            []Queue  `yaml:"queues"`
}

// Queue is a named subscription. Bindings are topic patterns where "*"
// matches one dot-separated word and "#" matches zero or more.
type Queue struct {
	Name     string   `yaml:"name"`
	Bindings []string `yaml:"bindings"`
}

// LoadTopology reads path, or the embedded default when path is empty.
func LoadTopology(path string) (*Topology, error) {
	data := defaultTopology
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read topology %s: %w", path, err)
		}
		data = b
	}
	return ParseTopology(data)
}

// DefaultTopology returns the embedded topology.
func DefaultTopology() *Topology {
	t, err := ParseTopology(defaultTopology)
	if err != nil {
		panic(fmt.Sprintf("embedded topology is invalid: %v", err))
	}
	return t
}

func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Topology) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Exchange) == "" {
		errs = append(errs, errors.New("topology: exchange is required"))
	}
	if t.Partitions <= 0 {
		errs = append(errs, errors.New("topology: partitions must be positive"))
	}
	if t.ReplicationFactor <= 0 {
		errs = append(errs, errors.New("topology: replication_factor must be positive"))
	}

	keys := make(map[string]struct{}, len(t.RoutingKeys))
	for _, key := range t.RoutingKeys {
		if !validWords(key) || strings.ContainsAny(key, "*#") {
			errs = append(errs, fmt.Errorf("topology: invalid routing key %q", key))
		}
		if _, dup := keys[key]; dup {
			errs = append(errs, fmt.Errorf("topology: duplicate routing key %q", key))
		}
		keys[key] = struct{}{}
	}

	names := make(map[string]struct{}, len(t.Queues))
	for _, q := range t.Queues {
		if q.Name == "" {
			errs = append(errs, errors.New("topology: queue name is required"))
			continue
		}
		if _, dup := names[q.Name]; dup {
			errs = append(errs, fmt.Errorf("topology: duplicate queue %q", q.Name))
		}
		names[q.Name] = struct{}{}
		for _, b := range q.Bindings {
			if !validWords(b) {
				errs = append(errs, fmt.Errorf("topology: queue %q has invalid binding %q", q.Name, b))
			}
		}
		if len(t.RoutingKeysFor(q.Name)) == 0 {
			errs = append(errs, fmt.Errorf("topology: queue %q matches no routing key", q.Name))
		}
	}
	return errors.Join(errs...)
}

// TopicFor is the durable topic a routing key is published to.
func (t *Topology) TopicFor(routingKey string) string {
	return t.Exchange + "." + routingKey
}

// RoutingKeyFor reverses TopicFor.
func (t *Topology) RoutingKeyFor(topic string) (string, bool) {
	return strings.CutPrefix(topic, t.Exchange+".")
}

func (t *Topology) HasRoutingKey(key string) bool {
	return slices.Contains(t.RoutingKeys, key)
}

func (t *Topology) Queue(name string) (Queue, bool) {
	for _, q := range t.Queues {
		if q.Name == name {
			return q, true
		}
	}
	return Queue{}, false
}

// QueuesFor lists the queues a message with routingKey is delivered to.
func (t *Topology) QueuesFor(routingKey string) []Queue {
	var out []Queue
	for _, q := range t.Queues {
		if q.Matches(routingKey) {
			out = append(out, q)
		}
	}
	return out
}

// RoutingKeysFor lists the declared routing keys a queue is bound to.
func (t *Topology) RoutingKeysFor(queue string) []string {
	q, ok := t.Queue(queue)
	if !ok {
		return nil
	}
	var out []string
	for _, key := range t.RoutingKeys {
		if q.Matches(key) {
			out = append(out, key)
		}
	}
	return out
}

// TopicsFor lists the topics a queue's consumer group subscribes to.
func (t *Topology) TopicsFor(queue string) []string {
	keys := t.RoutingKeysFor(queue)
	topics := make([]string, 0, len(keys))
	for _, key := range keys {
		topics = append(topics, t.TopicFor(key))
	}
	return topics
}

// DeadLetterTopic is where a queue parks messages that exhausted retries.
func DeadLetterTopic(queue string) string {
	return queue + DeadLetterSuffix
}

// Topics lists every topic to declare: one per routing key plus one
// dead-letter topic per queue.
func (t *Topology) Topics() []string {
	out := make([]string, 0, len(t.RoutingKeys)+len(t.Queues))
	for _, key := range t.RoutingKeys {
		out = append(out, t.TopicFor(key))
	}
	for _, q := range t.Queues {
		out = append(out, DeadLetterTopic(q.Name))
	}
	return out
}

func (q Queue) Matches(routingKey string) bool {
	for _, b := range q.Bindings {
		if Match(b, routingKey) {
			return true
		}
	}
	return false
}

// Match reports whether routingKey satisfies a topic pattern.
func Match(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			rest := pattern[1:]
			for i := 0; i <= len(key); i++ {
				if matchWords(rest, key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}

func validWords(s string) bool {
	if s == "" {
		return false
	}
	for _, w := range strings.Split(s, ".") {
		if w == "" {
			return false
		}
	}
	return true
}
