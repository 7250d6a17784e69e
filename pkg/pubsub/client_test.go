package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/farmfresh/marketplace-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, name, kind, want string
	}{
		{"farmfresh-prod", "ff-order-events", "topics", "projects/farmfresh-prod/topics/ff-order-events"},
		{"farmfresh-prod", " ff-order-events-analytics ", "subscriptions", "projects/farmfresh-prod/subscriptions/ff-order-events-analytics"},
		{"ignored", "projects/other/topics/t", "topics", "projects/other/topics/t"},
		{"farmfresh-prod", "", "topics", ""},
		{"", "ff-order-events", "topics", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.name, tc.kind); got != tc.want {
			t.Fatalf("resourceName(%q, %q, %q) = %q, want %q", tc.project, tc.name, tc.kind, got, tc.want)
		}
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "t"}, ModePublisher, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	gcp := config.GCPConfig{ProjectID: "farmfresh-dev"}
	if _, err := NewClient(ctx, gcp, config.PubSubConfig{}, ModePublisher, nil); !errors.Is(err, errTopicRequired) {
		t.Fatalf("expected topic error, got %v", err)
	}
	if _, err := NewClient(ctx, gcp, config.PubSubConfig{OrdersTopic: "t"}, ModeSubscriber, nil); !errors.Is(err, errNoSubscription) {
		t.Fatalf("expected subscription error, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.Publisher("t") != nil || c.Subscription("s") != nil {
		t.Fatalf("nil client must not hand out handles")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
