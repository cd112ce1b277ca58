// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sitekit/internal/protocol"
)

// newPair starts a correlator on one end of a pipe and returns the other end
// for the test to play the server.
func newPair(t *testing.T, timeout time.Duration) (*Correlator, Conn) {
	t.Helper()
	client, server := Pipe()
	c := NewCorrelator(client, WithTimeout(timeout))

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return c, server
}

// answer reads one command off server in the background and passes it to
// reply. Read errors after the test ends are ignored.
func answer(server Conn, reply func(protocol.Command)) {
	go func() {
		var cmd protocol.Command
		if err := server.ReadJSON(&cmd); err != nil {
			return
		}
		if reply != nil {
			reply(cmd)
		}
	}()
}

// readCommand reads the next command the client sent.
func readCommand(t *testing.T, server Conn) protocol.Command {
	t.Helper()
	var cmd protocol.Command
	if err := server.ReadJSON(&cmd); err != nil {
		t.Fatalf("server read: %v", err)
	}
	return cmd
}

func TestRequestCorrelatesByRequestID(t *testing.T) {
	c, server := newPair(t, time.Second)

	type result struct {
		msg protocol.Message
		err error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		msg, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionCreateComponent, RequestID: "req-a"}, protocol.TypeComponentCreated)
		first <- result{msg, err}
	}()
	cmdA := readCommand(t, server)

	go func() {
		msg, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionCreateComponent, RequestID: "req-b"}, protocol.TypeComponentCreated)
		second <- result{msg, err}
	}()
	cmdB := readCommand(t, server)

	// Answer in reverse order: each reply must still reach its own caller.
	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentCreated, RequestID: cmdB.RequestID, ComponentID: "b"})
	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentCreated, RequestID: cmdA.RequestID, ComponentID: "a"})

	ra := <-first
	rb := <-second
	if ra.err != nil || rb.err != nil {
		t.Fatalf("unexpected errors: %v, %v", ra.err, rb.err)
	}
	if ra.msg.ComponentID != "a" {
		t.Errorf("first request got %q, want a", ra.msg.ComponentID)
	}
	if rb.msg.ComponentID != "b" {
		t.Errorf("second request got %q, want b", rb.msg.ComponentID)
	}
}

func TestRequestGeneratesRequestID(t *testing.T) {
	c, server := newPair(t, time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionListComponents}, protocol.TypeComponentsList)
		done <- err
	}()

	cmd := readCommand(t, server)
	if cmd.RequestID == "" {
		t.Fatal("request id was not generated")
	}
	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentsList, RequestID: cmd.RequestID})
	if err := <-done; err != nil {
		t.Fatalf("Request: %v", err)
	}
}

func TestRequestTimesOut(t *testing.T) {
	c, server := newPair(t, 50*time.Millisecond)

	answer(server, nil)

	start := time.Now()
	_, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionDeleteComponent}, protocol.TypeComponentDeleted)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestRequestServerError(t *testing.T) {
	c, server := newPair(t, time.Second)

	answer(server, func(cmd protocol.Command) {
		server.WriteJSON(protocol.Message{Type: protocol.TypeError, RequestID: cmd.RequestID, Error: "component not found"})
	})

	_, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionUpdateComponent}, protocol.TypeComponentUpdated)
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *ServerError", err)
	}
	if serr.Message != "component not found" {
		t.Errorf("Message = %q", serr.Message)
	}
}

func TestRequestIgnoresOtherRequestsErrors(t *testing.T) {
	c, server := newPair(t, time.Second)

	answer(server, func(cmd protocol.Command) {
		server.WriteJSON(protocol.Message{Type: protocol.TypeError, RequestID: "someone-else", Error: "boom"})
		server.WriteJSON(protocol.Message{Type: protocol.TypeComponentUpdated, RequestID: cmd.RequestID})
	})

	if _, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionUpdateComponent}, protocol.TypeComponentUpdated); err != nil {
		t.Fatalf("Request: %v", err)
	}
}

func TestRequestFailsWhenClosed(t *testing.T) {
	c, server := newPair(t, 5*time.Second)

	answer(server, func(protocol.Command) {
		c.Close()
	})

	_, err := c.Request(context.Background(), protocol.Command{Action: protocol.ActionListComponents}, protocol.TypeComponentsList)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := c.SendMessage(protocol.Command{Action: protocol.ActionListComponents}); !errors.Is(err, ErrClosed) {
		t.Errorf("SendMessage after close = %v, want ErrClosed", err)
	}
}

func TestRequestContextCancel(t *testing.T) {
	c, server := newPair(t, 5*time.Second)
	answer(server, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, protocol.Command{Action: protocol.ActionListComponents}, protocol.TypeComponentsList)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestSubscribeFiresOnce(t *testing.T) {
	c, server := newPair(t, time.Second)

	var calls atomic.Int32
	got := make(chan struct{}, 4)
	unsubscribe := c.Subscribe(protocol.TypeNavbarUpdated, func(protocol.Message) {
		calls.Add(1)
		got <- struct{}{}
	})

	server.WriteJSON(protocol.Message{Type: protocol.TypeFooterUpdated})
	server.WriteJSON(protocol.Message{Type: protocol.TypeNavbarUpdated})
	server.WriteJSON(protocol.Message{Type: protocol.TypeNavbarUpdated})

	<-got
	// Give the read loop time to deliver the second message.
	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}

	// Unsubscribing after delivery is a no-op.
	unsubscribe()
	unsubscribe()
}

func TestListenReceivesEveryMessage(t *testing.T) {
	c, server := newPair(t, time.Second)

	got := make(chan string, 4)
	stop := c.Listen("", func(m protocol.Message) { got <- m.Type })

	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentCreated})
	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentDeleted})

	for _, want := range []string{protocol.TypeComponentCreated, protocol.TypeComponentDeleted} {
		select {
		case typ := <-got:
			if typ != want {
				t.Errorf("got %q, want %q", typ, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	stop()
}

// TestExpectTimeoutNeverFires sends a command, never answers in time, and
// checks the handler stays silent even when a late reply shows up.
func TestExpectTimeoutNeverFires(t *testing.T) {
	c, server := newPair(t, 40*time.Millisecond)

	var calls atomic.Int32
	c.Expect(protocol.TypeComponentCreated, "req-late", func(protocol.Message) {
		calls.Add(1)
	})
	if err := c.SendMessage(protocol.Command{Action: protocol.ActionCreateComponent, RequestID: "req-late"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	readCommand(t, server)

	time.Sleep(60 * time.Millisecond)
	server.WriteJSON(protocol.Message{Type: protocol.TypeComponentCreated, RequestID: "req-late"})
	time.Sleep(30 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times after timeout, want 0", n)
	}
}
