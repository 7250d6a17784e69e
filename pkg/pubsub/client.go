package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

// Mode selects which resources a process needs before it starts.
type Mode int

const (
	// ModePublisher needs the orders topic.
	ModePublisher Mode = iota
	// ModeSubscriber needs the orders subscription.
	ModeSubscriber
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub orders topic is required")
	errNoSubscription    = errors.New("pubsub orders subscription is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// admin is the slice of the Pub/Sub admin API used to check and create resources.
type admin interface {
	topicExists(ctx context.Context, name string) (bool, error)
	createTopic(ctx context.Context, name string) error
	subscriptionExists(ctx context.Context, name string) (bool, error)
	createSubscription(ctx context.Context, name, topic string, ackDeadline time.Duration) error
}

type Client struct {
	client    *pubsub.Client
	admin     admin
	projectID string
	cfg       config.PubSubConfig
	mode      Mode
	logg      *logger.Logger
}

// NewClient opens a Pub/Sub client and makes sure the resources for mode
// exist, creating them when cfg.AutoCreate is on. PUBSUB_EMULATOR_HOST is
// honoured by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, mode Mode, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if err := validate(cfg, mode); err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    psClient,
		admin:     gcpAdmin{psClient},
		projectID: gcp.ProjectID,
		cfg:       cfg,
		mode:      mode,
		logg:      logg,
	}
	if err := c.ensure(ctx, cfg.AutoCreate); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      gcp.ProjectID,
			"topic":        cfg.OrdersTopic,
			"subscription": cfg.OrdersSubscription,
			"mode":         mode.String(),
		}), "pubsub client initialized")
	}
	return c, nil
}

func (m Mode) String() string {
	if m == ModeSubscriber {
		return "subscriber"
	}
	return "publisher"
}

func validate(cfg config.PubSubConfig, mode Mode) error {
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if mode == ModeSubscriber {
		if strings.TrimSpace(cfg.OrdersSubscription) == "" {
			return errNoSubscription
		}
		// creating a subscription needs its topic
		if cfg.AutoCreate && topic == "" {
			return errTopicRequired
		}
		return nil
	}
	if topic == "" {
		return errTopicRequired
	}
	return nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// ensure verifies the resources for c.mode. With create set, missing ones
// are created; a subscriber also gets its topic.
func (c *Client) ensure(ctx context.Context, create bool) error {
	topic := c.topicResourceName(c.cfg.OrdersTopic)
	if c.mode == ModePublisher || create {
		if err := c.ensureOne(ctx, "topic", topic, c.admin.topicExists, create, func() error {
			return c.admin.createTopic(ctx, topic)
		}); err != nil {
			return err
		}
	}
	if c.mode != ModeSubscriber {
		return nil
	}
	sub := c.subscriptionResourceName(c.cfg.OrdersSubscription)
	return c.ensureOne(ctx, "subscription", sub, c.admin.subscriptionExists, create, func() error {
		return c.admin.createSubscription(ctx, sub, topic, c.cfg.AckDeadline)
	})
}

func (c *Client) ensureOne(ctx context.Context, kind, name string, exists func(context.Context, string) (bool, error), create bool, createFn func() error) error {
	if name == "" {
		return fmt.Errorf("%s not configured", kind)
	}
	ok, err := exists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
	if ok {
		return nil
	}
	if !create {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	if err := createFn(); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, kind, name), "pubsub resource created")
	}
	return nil
}

// Subscription returns a subscriber for the id or full resource name, tuned
// with the configured flow control.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil
	}
	sub := c.client.Subscriber(fullName)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	if c.cfg.ReceiveGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = c.cfg.ReceiveGoroutines
	}
	return sub
}

// OrdersSubscription returns the subscriber for order events.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Publisher returns a publisher for the topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Ping re-checks the resources without creating anything.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotInitialized
	}
	return c.ensure(ctx, false)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return resourceName(c.projectID, name, "subscriptions")
}

func (c *Client) topicResourceName(name string) string {
	return resourceName(c.projectID, name, "topics")
}

func resourceName(projectID, name, kind string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}

type gcpAdmin struct {
	client *pubsub.Client
}

func (a gcpAdmin) topicExists(ctx context.Context, name string) (bool, error) {
	_, err := a.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return found(err)
}

func (a gcpAdmin) createTopic(ctx context.Context, name string) error {
	_, err := a.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	return err
}

func (a gcpAdmin) subscriptionExists(ctx context.Context, name string) (bool, error) {
	_, err := a.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return found(err)
}

func (a gcpAdmin) createSubscription(ctx context.Context, name, topic string, ackDeadline time.Duration) error {
	sub := &pubsubpb.Subscription{Name: name, Topic: topic}
	if ackDeadline > 0 {
		sub.AckDeadlineSeconds = int32(ackDeadline / time.Second)
	}
	// keep unacked order events for a week so a stalled worker can catch up
	sub.MessageRetentionDuration = durationpb.New(7 * 24 * time.Hour)
	_, err := a.client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	return err
}

func found(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case status.Code(err) == codes.NotFound:
		return false, nil
	default:
		return false, err
	}
}
