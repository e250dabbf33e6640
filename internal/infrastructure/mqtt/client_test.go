package mqtt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ewoodhouse/vitalsync/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "vitalsync-test",
		},
		QoS:         1,
		TopicPrefix: "vitalsync",
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		fn     func(string) string
		want   string
	}{
		{"status with prefix", "home/health", StatusTopic, "home/health/status"},
		{"status default prefix", "", StatusTopic, "vitalsync/status"},
		{"availability with prefix", "home/health", availabilityTopic, "home/health/availability"},
		{"availability default prefix", "", availabilityTopic, "vitalsync/availability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.prefix); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain broker", func(t *testing.T) {
		opts := buildClientOptions(testMQTTConfig())

		if len(opts.Servers) != 1 {
			t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
		}
		if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
			t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
		}
		if opts.ClientID != "vitalsync-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if !opts.AutoReconnect {
			t.Error("AutoReconnect should be enabled")
		}
	})

	t.Run("tls broker", func(t *testing.T) {
		cfg := testMQTTConfig()
		cfg.Broker.TLS = true
		opts := buildClientOptions(cfg)

		if got := opts.Servers[0].Scheme; got != "ssl" {
			t.Errorf("scheme = %q, want ssl", got)
		}
		if opts.TLSConfig == nil {
			t.Fatal("TLSConfig not set")
		}
	})

	t.Run("credentials", func(t *testing.T) {
		cfg := testMQTTConfig()
		cfg.Auth.Username = "sync"
		cfg.Auth.Password = "secret"
		opts := buildClientOptions(cfg)

		if opts.Username != "sync" || opts.Password != "secret" {
			t.Error("credentials not applied")
		}
	})
}

func TestConfigureLWT(t *testing.T) {
	cfg := testMQTTConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "vitalsync/availability" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will message should be retained")
	}

	var will struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not valid JSON: %v", err)
	}
	if will.Status != "offline" || will.Reason != "unexpected_disconnect" {
		t.Errorf("unexpected will payload: %s", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("vitalsync-test"),
		"offline": buildOfflinePayload("vitalsync-test"),
	} {
		t.Run(name, func(t *testing.T) {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if decoded["status"] != name {
				t.Errorf("status = %v, want %s", decoded["status"], name)
			}
			if decoded["client_id"] != "vitalsync-test" {
				t.Errorf("client_id = %v", decoded["client_id"])
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	if err := c.Publish("", []byte("{}"), 1, false); err != ErrInvalidTopic {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("vitalsync/status", []byte("{}"), 3, false); err != ErrInvalidQoS {
		t.Errorf("qos 3: got %v, want ErrInvalidQoS", err)
	}

	huge := []byte(strings.Repeat("x", maxPayloadSize+1))
	if err := c.Publish("vitalsync/status", huge, 1, false); err == nil {
		t.Error("oversized payload should be rejected")
	}

	// Not connected: validation passes but publish is refused.
	if err := c.Publish("vitalsync/status", []byte("{}"), 1, false); err != ErrNotConnected {
		t.Errorf("disconnected publish: got %v, want ErrNotConnected", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
