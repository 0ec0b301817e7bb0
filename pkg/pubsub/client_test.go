package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/paytrack/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "demo"}

	cases := map[string]string{
		"poll-outcomes":                       "projects/demo/topics/poll-outcomes",
		" poll-outcomes ":                     "projects/demo/topics/poll-outcomes",
		"projects/other/topics/poll-outcomes": "projects/other/topics/poll-outcomes",
		"":                                    "",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}

	if got := (&Client{}).topicResourceName("poll-outcomes"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.OutcomePublisher() != nil {
		t.Fatalf("nil client should not hand out publishers")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error on nil client")
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OutcomeTopic: "t"}, nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "demo"}, config.PubSubConfig{OutcomeTopic: " "}, nil)
	if !errors.Is(err, errNoTopic) {
		t.Fatalf("expected errNoTopic, got %v", err)
	}
}
