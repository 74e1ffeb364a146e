// Package queue wraps github.com/streadway/amqp behind the AMQPConnection/
// AMQPChannel/AMQPDialer interfaces (see amqp_interface.go) so the stage
// fabric can be exercised against amqp_mock.go in tests without a broker.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"idp.evalgo.org/common"
)

const (
	messageTTLMillis = 3600000 // 1h, mirrors mq.py's x-message-ttl
	maxQueueLength   = 10000   // mirrors mq.py's x-max-length
)

// Fabric declares and publishes to the four stage queues: OCR, pipeline,
// push, and dead-letter. The dead-letter queue carries no TTL/length
// arguments — it is the terminal resting place for messages a worker gave
// up on, and should not itself expire or evict entries.
type Fabric struct {
	conn    AMQPConnection
	channel AMQPChannel
	cfg     common.QueueConfig
}

// NewFabric dials url using dialer, opens a channel, and declares all four
// queues. Pass &RealAMQPDialer{} in production; tests inject a fake.
func NewFabric(dialer AMQPDialer, cfg common.QueueConfig) (*Fabric, error) {
	conn, err := dialer.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	f := &Fabric{conn: conn, channel: ch, cfg: cfg}
	if err := f.declareQueues(); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return f, nil
}

func (f *Fabric) declareQueues() error {
	bounded := amqp.Table{
		"x-message-ttl": int32(messageTTLMillis),
		"x-max-length":  int32(maxQueueLength),
	}

	for _, name := range []string{f.cfg.OCRQueue, f.cfg.PipelineQueue, f.cfg.PushQueue} {
		if _, err := f.channel.QueueDeclare(name, true, false, false, false, bounded); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	if _, err := f.channel.QueueDeclare(f.cfg.DeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	return nil
}

// queueName resolves a StageName to its declared queue, or the dead-letter
// queue for anything else.
func (f *Fabric) queueName(stage common.StageName) string {
	switch stage {
	case common.StageOCR:
		return f.cfg.OCRQueue
	case common.StagePipeline:
		return f.cfg.PipelineQueue
	case common.StagePush:
		return f.cfg.PushQueue
	default:
		return f.cfg.DeadLetter
	}
}

// Publish sends msg to its stage's queue. If delaySeconds is non-zero the
// message carries an AMQP Expiration (milliseconds, as a decimal string,
// matching mq.py's publish_task delay semantics) so RabbitMQ holds it off
// the consumer until the TTL elapses — used for push retry backoff.
func (f *Fabric) Publish(msg common.StageMessage, delaySeconds int) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stage message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if delaySeconds > 0 {
		publishing.Expiration = fmt.Sprintf("%d", delaySeconds*1000)
	}

	return f.channel.Publish("", f.queueName(msg.Stage), false, false, publishing)
}

// PublishDeadLetter routes msg directly to the dead-letter queue, bypassing
// its normal stage queue. Used when a worker exhausts its retry budget.
func (f *Fabric) PublishDeadLetter(msg common.StageMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stage message: %w", err)
	}

	return f.channel.Publish("", f.cfg.DeadLetter, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume starts an auto-ack-disabled consumer on stage's queue. Callers
// are responsible for acking/nacking each delivery once the message has
// been durably processed (or permanently failed).
func (f *Fabric) Consume(stage common.StageName, consumerTag string) (<-chan amqp.Delivery, error) {
	return f.channel.Consume(f.queueName(stage), consumerTag, false, false, false, false, nil)
}

// Depth returns the current message count for stage's queue, used by the
// uploader to estimate processing ETA under backpressure.
func (f *Fabric) Depth(stage common.StageName) (int, error) {
	q, err := f.channel.QueueInspect(f.queueName(stage))
	if err != nil {
		return 0, fmt.Errorf("inspect queue %s: %w", f.queueName(stage), err)
	}
	return q.Messages, nil
}

// Close tears down the channel and connection.
func (f *Fabric) Close() error {
	chErr := f.channel.Close()
	connErr := f.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
