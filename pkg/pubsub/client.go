// Package pubsub wraps the Pub/Sub v2 client with resource-name handling and
// existence checks for the subscriptions a process consumes.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

var errNotInitialized = errors.New("pubsub client not initialized")

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu   sync.Mutex
	subs []string
}

// NewClient dials Pub/Sub. Subscriptions are checked lazily by Subscriber so
// publish-only processes need none of them.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client ready")
	}
	return &Client{client: raw, projectID: projectID, cfg: cfg}, nil
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

// Subscriber verifies the subscription exists and returns a receiver for it
// with the configured flow control. Ping re-checks every subscription opened here.
func (c *Client) Subscriber(ctx context.Context, name string) (*pubsub.Subscriber, error) {
	if c == nil || c.client == nil {
		return nil, errNotInitialized
	}
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil, errors.New("subscription name is required")
	}
	if err := c.checkSubscription(ctx, full); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs = append(c.subs, full)
	c.mu.Unlock()

	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub, nil
}

// Publisher returns a handle for a topic id or full resource name, or nil when
// name is blank.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping checks the subscriptions this process consumes, or the domain topic
// when it consumes none.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	c.mu.Lock()
	subs := append([]string(nil), c.subs...)
	c.mu.Unlock()
	if len(subs) == 0 {
		topic := resourceName(c.projectID, "topics", c.cfg.DomainTopic)
		if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
			return fmt.Errorf("get topic %s: %w", topic, err)
		}
		return nil
	}
	for _, full := range subs {
		if err := c.checkSubscription(ctx, full); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) checkSubscription(ctx context.Context, full string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("subscription %s does not exist", full)
	default:
		return fmt.Errorf("get subscription %s: %w", full, err)
	}
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Names that
// already carry the projects/ prefix pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
