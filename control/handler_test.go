package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"loggerctl/command"
	"loggerctl/transport"
	"loggerctl/transport/transporttest"
)

var target = command.Target{GroupID: "grp", DeviceID: "cr1000x/1234"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendCommandTimeout(t *testing.T) {
	fake := transporttest.New()
	h := NewHandler(fake, testLogger())
	d := command.NewReboot(target)

	start := time.Now()
	resp, err := h.SendCommand(context.Background(), d, command.Args{}, time.Second)
	elapsed := time.Since(start)

	if resp != nil {
		t.Fatalf("Expected no response, got %+v", resp)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Expected ErrNoResponse, got %v", err)
	}
	if elapsed < 900*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Expected to wait about one second, waited %v", elapsed)
	}

	want := []string{
		transporttest.OpConnect,
		transporttest.OpSubscribe,
		transporttest.OpPublish,
		transporttest.OpUnsubscribe,
		transporttest.OpDisconnect,
	}
	if got := fake.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected operations %v, got %v", want, got)
	}
	if h.State() != Idle {
		t.Errorf("Expected Idle after the call, got %s", h.State())
	}
}

func TestSendCommandPublishes(t *testing.T) {
	d := command.NewSetSetting(target)
	fake := transporttest.New(transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"success":true}`)})
	h := NewHandler(fake, testLogger(), WithSubscribeQoS(transport.ExactlyOnce))

	args := command.Positional("PakBusAddress", "2").With("apply", true)
	if _, err := h.SendCommand(context.Background(), d, args, time.Second); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	fake.Wait()

	ops := fake.Ops()
	if ops[1].Topic != "grp/cr/cr1000x/1234/setting" || ops[1].QoS != transport.ExactlyOnce {
		t.Errorf("Unexpected subscribe: %+v", ops[1])
	}
	pub := ops[2]
	if pub.Topic != "grp/cc/cr1000x/1234/setting" || pub.QoS != transport.AtLeastOnce {
		t.Errorf("Unexpected publish: %+v", pub)
	}
	var body map[string]any
	if err := json.Unmarshal(pub.Payload, &body); err != nil {
		t.Fatalf("Published payload is not JSON: %v", err)
	}
	want := map[string]any{"action": "set", "name": "PakBusAddress", "value": "2", "apply": true}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("Expected payload %v, got %v", want, body)
	}
}

func TestSendCommandListFiles(t *testing.T) {
	d := command.NewListFiles(target)
	fake := transporttest.New(transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"fileList":["a","b"]}`)})
	h := NewHandler(fake, testLogger())

	resp, err := h.SendCommand(context.Background(), d, command.Args{}, time.Second)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("Expected success, got %+v", resp)
	}
	want := map[string]any{"fileList": []any{"a", "b"}}
	if !reflect.DeepEqual(resp.Payload, want) {
		t.Errorf("Expected payload %v, got %v", want, resp.Payload)
	}
}

func TestSendCommandStructuredFailure(t *testing.T) {
	d := command.NewDeleteFile(target)
	fake := transporttest.New(transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"error":"file not found"}`)})
	h := NewHandler(fake, testLogger())

	resp, err := h.SendCommand(context.Background(), d, command.Positional("CPU:prog.cr1x"), time.Second)
	if err != nil {
		t.Fatalf("A device error must be a Response, got error %v", err)
	}
	if resp.Success || resp.Error != "file not found" {
		t.Errorf("Expected failure with device error, got %+v", resp)
	}
}

func TestSendCommandTalkThruViolation(t *testing.T) {
	d := command.NewTalkThru(target)
	fake := transporttest.New(transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"comPort":"X"}`)})
	var states []State
	var mu sync.Mutex
	h := NewHandler(fake, testLogger(), WithStateObserver(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))

	resp, err := h.SendCommand(context.Background(), d, command.Positional("ComC1", "M!"), time.Second)
	if resp != nil {
		t.Fatalf("Expected no Response, got %+v", resp)
	}
	if !command.IsProtocolError(err) {
		t.Fatalf("Expected protocol error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{Connecting, AwaitingResponse, ProtocolViolation, Idle}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("Expected states %v, got %v", want, states)
	}
}

func TestSendCommandProgramStateFailure(t *testing.T) {
	d := command.NewProgram(target)
	fake := transporttest.New(transporttest.Reply{
		Topic:   d.StateTopic(),
		Payload: []byte(`{"clientId":"ABC","state":"online","fileTransfer":"CRBasic file transfer error"}`),
	})
	h := NewHandler(fake, testLogger())

	resp, err := h.SendCommand(context.Background(), d, command.Positional("https://files/prog.cr1x", "prog.cr1x"), time.Second)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp.Success || resp.Error != "Program download failed" {
		t.Errorf("Expected program download failure, got %+v", resp)
	}

	want := []string{
		transporttest.OpConnect,
		transporttest.OpSubscribe,
		transporttest.OpSubscribe,
		transporttest.OpPublish,
		transporttest.OpUnsubscribe,
		transporttest.OpUnsubscribe,
		transporttest.OpDisconnect,
	}
	if got := fake.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected operations %v, got %v", want, got)
	}
	if fake.Subscribed(d.StateTopic()) || fake.Subscribed(d.ResponseTopic()) {
		t.Error("Subscriptions should be released")
	}
}

func TestSendCommandFirstMatchWins(t *testing.T) {
	d := command.NewReboot(target)
	fake := transporttest.New(
		transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`not json`)},
		transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"status":"queued"}`)},
		transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"error":"busy"}`)},
		transporttest.Reply{Topic: d.ResponseTopic(), Payload: []byte(`{"success":true}`)},
	)
	h := NewHandler(fake, testLogger())

	resp, err := h.SendCommand(context.Background(), d, command.Args{}, time.Second)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp.Success || resp.Error != "busy" {
		t.Errorf("Expected the first classifiable reply to win, got %+v", resp)
	}
}

func TestSendCommandConnectivityFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		fake *transporttest.Fake
		op   string
		want []string
	}{
		{
			name: "connect",
			fake: &transporttest.Fake{ConnectErr: boom},
			op:   "connect",
			want: []string{transporttest.OpConnect, transporttest.OpDisconnect},
		},
		{
			name: "subscribe",
			fake: &transporttest.Fake{SubscribeErr: boom},
			op:   "subscribe",
			want: []string{transporttest.OpConnect, transporttest.OpSubscribe, transporttest.OpDisconnect},
		},
		{
			name: "publish",
			fake: &transporttest.Fake{PublishErr: boom},
			op:   "publish",
			want: []string{
				transporttest.OpConnect,
				transporttest.OpSubscribe,
				transporttest.OpPublish,
				transporttest.OpUnsubscribe,
				transporttest.OpDisconnect,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.fake, testLogger())
			_, err := h.SendCommand(context.Background(), command.NewReboot(target), command.Args{}, time.Second)

			var ce *ConnectionError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConnectionError, got %v", err)
			}
			if ce.Op != tt.op || !errors.Is(err, boom) {
				t.Errorf("Unexpected error: %v", err)
			}
			if errors.Is(err, ErrNoResponse) {
				t.Error("Connectivity failure must not look like a timeout")
			}
			if got := tt.fake.Kinds(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected operations %v, got %v", tt.want, got)
			}
			if h.State() != Idle {
				t.Errorf("Expected Idle, got %s", h.State())
			}
		})
	}
}

func TestSendCommandCancelledConnect(t *testing.T) {
	fake := &transporttest.Fake{ConnectErr: context.Canceled}
	h := NewHandler(fake, testLogger())

	_, err := h.SendCommand(context.Background(), command.NewReboot(target), command.Args{}, time.Second)
	if !IsConnectionError(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected a ConnectionError wrapping context.Canceled, got %v", err)
	}
	want := []string{transporttest.OpConnect, transporttest.OpDisconnect}
	if got := fake.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected operations %v, got %v", want, got)
	}
}

func TestSendCommandValidationBeforeIO(t *testing.T) {
	fake := transporttest.New()
	h := NewHandler(fake, testLogger())

	_, err := h.SendCommand(context.Background(), command.NewEditConstants(target), command.Positional(5), time.Second)
	if !command.IsValidationError(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if ops := fake.Ops(); len(ops) != 0 {
		t.Errorf("Expected no transport calls, got %v", ops)
	}
}

func TestSendCommandBusy(t *testing.T) {
	fake := transporttest.New()
	h := NewHandler(fake, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.SendCommand(ctx, command.NewReboot(target), command.Args{}, 5*time.Second)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.State() != AwaitingResponse {
		if time.Now().After(deadline) {
			t.Fatal("first command never started waiting")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := h.SendCommand(context.Background(), command.NewReboot(target), command.Args{}, time.Second); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled command did not return")
	}

	kinds := fake.Kinds()
	if kinds[len(kinds)-1] != transporttest.OpDisconnect {
		t.Errorf("Expected cleanup after cancel, got %v", kinds)
	}
}

func TestDefaultTimeout(t *testing.T) {
	d := command.NewReboot(target)
	fake := transporttest.New()
	h := NewHandler(fake, testLogger(), WithDefaultTimeout(200*time.Millisecond))

	start := time.Now()
	_, err := h.SendCommand(context.Background(), d, command.Args{}, 0)
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Expected ErrNoResponse, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the handler default timeout, waited %v", elapsed)
	}
}
