package transport

import (
	"crypto/tls"
	"testing"

	"loggerctl/config"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"plain", Options{Server: "broker.local", Port: 1883}, "tcp://broker.local:1883"},
		{"tls", Options{Server: "broker.local", Port: 8883, TLSConfig: &tls.Config{}}, "ssl://broker.local:8883"},
		{"explicit scheme", Options{Server: "ws://broker.local:9001/mqtt", Port: 1883}, "ws://broker.local:9001/mqtt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.BrokerURL(); got != tt.want {
				t.Errorf("BrokerURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSubscribeQoS(t *testing.T) {
	if SubscribeQoS(KindCloudIoT) != ExactlyOnce {
		t.Error("cloud subscriptions should be exactly-once")
	}
	if SubscribeQoS(KindGeneric) != AtLeastOnce {
		t.Error("generic subscriptions should be at-least-once")
	}
}

func TestNew(t *testing.T) {
	t.Run("Generic broker", func(t *testing.T) {
		cfg := &config.Config{Broker: "mosquitto", Server: "broker.local", Port: 1883, ClientID: "base"}
		tr, kind, err := New(cfg, "base-1", nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if kind != KindGeneric {
			t.Errorf("Expected generic kind, got %s", kind)
		}
		if _, ok := tr.(*Generic); !ok {
			t.Errorf("Expected *Generic, got %T", tr)
		}
	})

	t.Run("Cloud broker without credentials", func(t *testing.T) {
		cfg := &config.Config{Broker: "aws", Server: "iot.example.com", ClientID: "base"}
		_, kind, err := New(cfg, "", nil)
		if err == nil {
			t.Fatal("Expected credential error")
		}
		if kind != KindCloudIoT {
			t.Errorf("Expected cloud kind, got %s", kind)
		}
	})

	t.Run("Cloud broker with unreadable certificate", func(t *testing.T) {
		cfg := &config.Config{Broker: "aws", Server: "iot.example.com", ClientID: "base", PublicKey: "missing.pem", PrivateKey: "missing.key"}
		if _, _, err := New(cfg, "", nil); err == nil {
			t.Fatal("Expected certificate load error")
		}
	})
}
