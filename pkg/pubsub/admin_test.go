package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

type fakeAdmin struct {
	topics    map[string]bool
	subs      map[string]string
	createErr error
	checkErr  error
	deadline  time.Duration
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{topics: map[string]bool{}, subs: map[string]string{}}
}

func (f *fakeAdmin) topicExists(_ context.Context, name string) (bool, error) {
	return f.topics[name], f.checkErr
}

func (f *fakeAdmin) createTopic(_ context.Context, name string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.topics[name] = true
	return nil
}

func (f *fakeAdmin) subscriptionExists(_ context.Context, name string) (bool, error) {
	_, ok := f.subs[name]
	return ok, f.checkErr
}

func (f *fakeAdmin) createSubscription(_ context.Context, name, topic string, ackDeadline time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.subs[name] = topic
	f.deadline = ackDeadline
	return nil
}

func testClient(admin *fakeAdmin, mode Mode) *Client {
	return &Client{
		admin:     admin,
		projectID: "farmfresh-dev",
		mode:      mode,
		logg:      logger.Nop(),
		cfg: config.PubSubConfig{
			OrdersTopic:        "ff-order-events",
			OrdersSubscription: "ff-order-events-analytics",
			AckDeadline:        45 * time.Second,
		},
	}
}

const (
	topicName = "projects/farmfresh-dev/topics/ff-order-events"
	subName   = "projects/farmfresh-dev/subscriptions/ff-order-events-analytics"
)

func TestEnsureFailsOnMissingResourcesWithoutCreate(t *testing.T) {
	admin := newFakeAdmin()

	err := testClient(admin, ModePublisher).ensure(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	admin.topics[topicName] = true
	assert.NoError(t, testClient(admin, ModePublisher).ensure(context.Background(), false))
	assert.Error(t, testClient(admin, ModeSubscriber).ensure(context.Background(), false))
}

func TestEnsureCreatesTopicAndSubscription(t *testing.T) {
	admin := newFakeAdmin()
	c := testClient(admin, ModeSubscriber)

	require.NoError(t, c.ensure(context.Background(), true))
	assert.True(t, admin.topics[topicName])
	assert.Equal(t, topicName, admin.subs[subName])
	assert.Equal(t, 45*time.Second, admin.deadline)

	// Ping never creates, but now everything exists
	assert.NoError(t, c.Ping(context.Background()))
}

func TestEnsureToleratesConcurrentCreate(t *testing.T) {
	admin := newFakeAdmin()
	admin.createErr = status.Error(codes.AlreadyExists, "topic exists")

	assert.NoError(t, testClient(admin, ModePublisher).ensure(context.Background(), true))
}

func TestEnsureSurfacesAdminErrors(t *testing.T) {
	admin := newFakeAdmin()
	admin.checkErr = errors.New("permission denied")
	assert.ErrorContains(t, testClient(admin, ModePublisher).ensure(context.Background(), true), "permission denied")

	admin = newFakeAdmin()
	admin.createErr = status.Error(codes.PermissionDenied, "nope")
	assert.ErrorContains(t, testClient(admin, ModePublisher).ensure(context.Background(), true), "creating topic")
}

func TestValidateSubscriberAutoCreateNeedsTopic(t *testing.T) {
	cfg := config.PubSubConfig{OrdersSubscription: "s", AutoCreate: true}
	assert.ErrorIs(t, validate(cfg, ModeSubscriber), errTopicRequired)
	cfg.AutoCreate = false
	assert.NoError(t, validate(cfg, ModeSubscriber))
}
