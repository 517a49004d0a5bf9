package channel

import (
	"net"
	"testing"
	"time"
)

func dialWithRetry(t *testing.T, c uint8) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socketName(c))
		if err == nil {
			return conn
		}
		lastErr = err
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("dial channel %d: %v", c, lastErr)
	return nil
}

func TestEndpointAcceptsClientAndDeliversMessage(t *testing.T) {
	ep, err := New(201)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ep.Close()

	inbound := make(chan Message, 4)
	go ep.Run(inbound)

	conn := dialWithRetry(t, 201)
	defer conn.Close()

	if err := writeMessage(conn, []byte("hello")); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}

	select {
	case msg := <-inbound:
		if msg.Channel != 201 || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound message")
	}
}

func TestSendWithoutClientReturnsErrNotConnected(t *testing.T) {
	ep, err := New(202)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ep.Close()

	if err := ep.Send([]byte("x")); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendDeliversToAttachedClient(t *testing.T) {
	ep, err := New(203)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ep.Close()

	inbound := make(chan Message, 4)
	go ep.Run(inbound)

	conn := dialWithRetry(t, 203)
	defer conn.Close()

	// Give the accept loop a moment to attach the client before Send.
	deadline := time.Now().Add(2 * time.Second)
	for !ep.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !ep.Connected() {
		t.Fatalf("endpoint never reported connected")
	}

	if err := ep.Send([]byte("world")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	payload, err := readMessage(conn)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if string(payload) != "world" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestDisconnectReopensListener(t *testing.T) {
	ep, err := New(204)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ep.Close()

	inbound := make(chan Message, 4)
	go ep.Run(inbound)

	conn1 := dialWithRetry(t, 204)
	conn1.Close()

	conn2 := dialWithRetry(t, 204)
	defer conn2.Close()

	if err := writeMessage(conn2, []byte("second")); err != nil {
		t.Fatalf("writeMessage on reopened listener: %v", err)
	}
	select {
	case msg := <-inbound:
		if string(msg.Payload) != "second" {
			t.Fatalf("unexpected payload: %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message after reconnect")
	}
}
