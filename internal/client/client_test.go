// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package client

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/ordering"
	"sitekit/internal/protocol"
	"sitekit/internal/transport"
)

const (
	idA = "00000000-0000-4000-8000-00000000000a"
	idB = "00000000-0000-4000-8000-00000000000b"
	idC = "00000000-0000-4000-8000-00000000000c"
)

// fakeServer plays the server end of a pipe. Commands are queued on cmds in
// the order the client sent them.
type fakeServer struct {
	conn transport.Conn
	cmds chan protocol.Command
}

func (s *fakeServer) next(t *testing.T) protocol.Command {
	t.Helper()
	select {
	case cmd := <-s.cmds:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
		return protocol.Command{}
	}
}

func (s *fakeServer) reply(t *testing.T, msg protocol.Message) {
	t.Helper()
	if err := s.conn.WriteJSON(msg); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *fakeServer) idle(t *testing.T) {
	t.Helper()
	select {
	case cmd := <-s.cmds:
		t.Fatalf("unexpected command %s", cmd.Action)
	case <-time.After(50 * time.Millisecond):
	}
}

type recorder struct {
	mu    sync.Mutex
	kinds []NotificationKind
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind)
}

func (r *recorder) get() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NotificationKind(nil), r.kinds...)
}

func newTestClient(t *testing.T, timeout time.Duration) (*Client, *fakeServer, *recorder) {
	t.Helper()
	clientEnd, serverEnd := transport.Pipe()
	corr := transport.NewCorrelator(clientEnd, transport.WithTimeout(timeout))

	ctx, cancel := context.WithCancel(context.Background())
	go corr.Run(ctx)

	srv := &fakeServer{conn: serverEnd, cmds: make(chan protocol.Command, 16)}
	go func() {
		for {
			var cmd protocol.Command
			if err := serverEnd.ReadJSON(&cmd); err != nil {
				return
			}
			srv.cmds <- cmd
		}
	}()

	rec := &recorder{}
	c := New(corr, cache.NewStore(), WithNotifier(rec))
	t.Cleanup(func() {
		c.Close()
		cancel()
		serverEnd.Close()
	})
	return c, srv, rec
}

func comp(id string, order int, data map[string]any) models.Component {
	return models.Component{ComponentID: id, ComponentType: models.ComponentTypeHero, Data: data, Order: order}
}

// seed answers the initial list request for col with list.
func seed(t *testing.T, col *Collection, srv *fakeServer, list ...models.Component) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := col.Load(context.Background())
		done <- err
	}()
	cmd := srv.next(t)
	if cmd.Action != col.Kind().List {
		t.Fatalf("action = %q, want %q", cmd.Action, col.Kind().List)
	}
	data, err := protocol.EncodeData(list)
	if err != nil {
		t.Fatal(err)
	}
	srv.reply(t, protocol.Message{Type: col.Kind().Listed, RequestID: cmd.RequestID, Data: data})
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func ackComponent(t *testing.T, srv *fakeServer, cmd protocol.Command, replyType string, c models.Component) {
	t.Helper()
	data, err := protocol.EncodeData(c)
	if err != nil {
		t.Fatal(err)
	}
	srv.reply(t, protocol.Message{Type: replyType, RequestID: cmd.RequestID, ComponentID: c.ComponentID, Data: data})
}

func orderedIDs(list []models.Component) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ComponentID
	}
	return out
}

func TestLoadSortsByOrder(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idB, 1, nil), comp(idA, 0, nil))

	if got := orderedIDs(col.Items()); !reflect.DeepEqual(got, []string{idA, idB}) {
		t.Errorf("Items() = %v", got)
	}
}

func TestCreateConverges(t *testing.T) {
	c, srv, rec := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil))

	type result struct {
		c   models.Component
		err error
	}
	done := make(chan result, 1)
	go func() {
		created, err := col.Create(context.Background(), models.ComponentTypeFAQ, map[string]any{"q": "why"}, nil)
		done <- result{created, err}
	}()

	cmd := srv.next(t)
	if cmd.Action != protocol.ActionCreateComponent || cmd.Slug != "home" || cmd.Status != models.DocumentStatusPreview {
		t.Fatalf("unexpected command %+v", cmd)
	}
	items := col.Items()
	if len(items) != 2 || !items[1].IsDraft() || items[1].ComponentID != cmd.ComponentID {
		t.Fatalf("optimistic items = %+v", items)
	}

	ackComponent(t, srv, cmd, protocol.TypeComponentCreated, models.Component{
		ComponentID:   cmd.ComponentID,
		ComponentType: models.ComponentTypeFAQ,
		Data:          map[string]any{"q": "why", "a": "because"},
		Order:         1,
	})
	res := <-done
	if res.err != nil {
		t.Fatalf("Create: %v", res.err)
	}

	items = col.Items()
	if len(items) != 2 {
		t.Fatalf("want exactly one created entity, got %+v", items)
	}
	got := items[1]
	if got.ComponentID != cmd.ComponentID || got.IsDraft() || got.Data["a"] != "because" {
		t.Errorf("confirmed = %+v", got)
	}
	if res.c.ComponentID != cmd.ComponentID || res.c.Order != 1 {
		t.Errorf("returned = %+v", res.c)
	}
	if want := []NotificationKind{NotifyPending, NotifySuccess}; !reflect.DeepEqual(rec.get(), want) {
		t.Errorf("notifications = %v, want %v", rec.get(), want)
	}
}

func TestCreateMergedBeforeAckStaysUnique(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil))

	changed := make(chan struct{}, 8)
	stop := c.Store().Watch(func(key cache.Key, _ uint64) {
		if key == col.Key() {
			changed <- struct{}{}
		}
	})
	defer stop()

	done := make(chan error, 1)
	go func() {
		_, err := col.Create(context.Background(), models.ComponentTypeFAQ, nil, nil)
		done <- err
	}()
	cmd := srv.next(t)
	<-changed // optimistic apply

	// Another session reorders the page and the new component arrives
	// in server truth before its own ack.
	data, _ := protocol.EncodeData([]models.Component{
		{ComponentID: cmd.ComponentID, ComponentType: models.ComponentTypeFAQ, Order: 0},
		comp(idA, 1, nil),
	})
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentOrderUpdated, Slug: "home", Status: "preview", Data: data})
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("broadcast not applied")
	}

	assertUnique := func(stage string) {
		t.Helper()
		items := col.Items()
		if got := orderedIDs(items); !reflect.DeepEqual(got, []string{cmd.ComponentID, idA}) {
			t.Fatalf("%s: ids = %v", stage, got)
		}
		if !ordering.IsDense(items) {
			t.Fatalf("%s: orders not dense: %+v", stage, items)
		}
	}
	assertUnique("before ack")

	ackComponent(t, srv, cmd, protocol.TypeComponentCreated, models.Component{
		ComponentID:   cmd.ComponentID,
		ComponentType: models.ComponentTypeFAQ,
		Order:         0,
	})
	if err := <-done; err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertUnique("after ack")
}

func TestCreateAtIndexKeepsOptimisticOrder(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil), comp(idB, 1, nil))

	done := make(chan error, 1)
	go func() {
		_, err := col.Create(context.Background(), models.ComponentTypeBanner, nil, protocol.Int(1))
		done <- err
	}()
	cmd := srv.next(t)
	if cmd.Order == nil || *cmd.Order != 1 {
		t.Fatalf("order = %v, want 1", cmd.Order)
	}
	// The ack leaves the position to the client.
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentCreated, RequestID: cmd.RequestID, ComponentID: cmd.ComponentID})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	items := col.Items()
	if got := orderedIDs(items); !reflect.DeepEqual(got, []string{idA, cmd.ComponentID, idB}) {
		t.Errorf("ids = %v", got)
	}
	if !ordering.IsDense(items) {
		t.Errorf("orders not dense: %+v", items)
	}
}

func TestRollbackOnServerError(t *testing.T) {
	c, srv, rec := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, map[string]any{"title": "a"}), comp(idB, 1, nil))
	before := col.Items()

	done := make(chan error, 1)
	go func() { done <- col.Delete(context.Background(), idA) }()
	cmd := srv.next(t)
	if got := orderedIDs(col.Items()); !reflect.DeepEqual(got, []string{idB}) {
		t.Fatalf("optimistic ids = %v", got)
	}
	srv.reply(t, protocol.Message{Type: protocol.TypeError, RequestID: cmd.RequestID, Error: "boom"})

	err := <-done
	var serverErr *transport.ServerError
	if !errors.As(err, &serverErr) || serverErr.Message != "boom" {
		t.Fatalf("err = %v, want server error", err)
	}
	if after := col.Items(); !reflect.DeepEqual(after, before) {
		t.Errorf("after rollback = %+v, want %+v", after, before)
	}
	if want := []NotificationKind{NotifyPending, NotifyError}; !reflect.DeepEqual(rec.get(), want) {
		t.Errorf("notifications = %v, want %v", rec.get(), want)
	}
}

func TestRollbackOnTimeout(t *testing.T) {
	c, srv, _ := newTestClient(t, 50*time.Millisecond)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil))
	before := col.Items()

	_, err := col.Create(context.Background(), models.ComponentTypeHero, nil, nil)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if after := col.Items(); !reflect.DeepEqual(after, before) {
		t.Errorf("after timeout = %+v, want %+v", after, before)
	}
	if n := c.Store().Pending(col.Key()); n != 0 {
		t.Errorf("pending = %d", n)
	}
}

func TestRollbackKeepsOtherInFlightCommand(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv)

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() {
		_, err := col.Create(context.Background(), models.ComponentTypeHero, nil, nil)
		first <- err
	}()
	cmd1 := srv.next(t)
	go func() {
		_, err := col.Create(context.Background(), models.ComponentTypeAbout, nil, nil)
		second <- err
	}()
	cmd2 := srv.next(t)

	srv.reply(t, protocol.Message{Type: protocol.TypeError, RequestID: cmd1.RequestID, Error: "nope"})
	if err := <-first; err == nil {
		t.Fatal("first create should fail")
	}
	if got := orderedIDs(col.Items()); !reflect.DeepEqual(got, []string{cmd2.ComponentID}) {
		t.Fatalf("after rollback ids = %v", got)
	}

	srv.reply(t, protocol.Message{Type: protocol.TypeComponentCreated, RequestID: cmd2.RequestID, ComponentID: cmd2.ComponentID})
	if err := <-second; err != nil {
		t.Fatal(err)
	}
	items := col.Items()
	if len(items) != 1 || items[0].ComponentID != cmd2.ComponentID || items[0].Order != 0 {
		t.Errorf("items = %+v", items)
	}
}

func TestUpdateMergesData(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, map[string]any{"title": "old", "subtitle": "keep"}))

	done := make(chan error, 1)
	go func() { done <- col.Update(context.Background(), idA, map[string]any{"title": "new"}) }()
	cmd := srv.next(t)
	if got := col.Items()[0].Data; got["title"] != "new" || got["subtitle"] != "keep" {
		t.Fatalf("optimistic data = %v", got)
	}
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentUpdated, RequestID: cmd.RequestID, ComponentID: idA})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got := col.Items()[0]
	want := map[string]any{"title": "new", "subtitle": "keep"}
	if !reflect.DeepEqual(got.Data, want) || got.Order != 0 {
		t.Errorf("confirmed = %+v", got)
	}
}

func TestReplacePreservesIdentity(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil), comp(idB, 1, map[string]any{"title": "x"}))

	done := make(chan error, 1)
	go func() {
		done <- col.Replace(context.Background(), idB, models.ComponentTypeYoutube, map[string]any{"url": "v"}, nil)
	}()
	cmd := srv.next(t)
	ackComponent(t, srv, cmd, protocol.TypeComponentReplaced, models.Component{
		ComponentID:   idB,
		ComponentType: models.ComponentTypeYoutube,
		Data:          map[string]any{"url": "v"},
		Order:         1,
	})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got := col.Items()[1]
	if got.ComponentID != idB || got.Order != 1 || got.ComponentType != models.ComponentTypeYoutube {
		t.Errorf("replaced = %+v", got)
	}
	if _, ok := got.Data["title"]; ok {
		t.Errorf("replace must not merge old data: %v", got.Data)
	}
}

func TestCreateThenDeleteBeforeAck(t *testing.T) {
	for _, deleteFirst := range []bool{false, true} {
		name := "create ack first"
		if deleteFirst {
			name = "delete ack first"
		}
		t.Run(name, func(t *testing.T) {
			c, srv, _ := newTestClient(t, time.Second)
			col := c.Components("home")
			seed(t, col, srv)

			created := make(chan error, 1)
			go func() {
				_, err := col.Create(context.Background(), models.ComponentTypeHero, nil, nil)
				created <- err
			}()
			createCmd := srv.next(t)

			deleted := make(chan error, 1)
			go func() { deleted <- col.Delete(context.Background(), createCmd.ComponentID) }()
			deleteCmd := srv.next(t)

			if items := col.Items(); len(items) != 0 {
				t.Fatalf("optimistic items = %+v", items)
			}

			ackCreate := func() {
				srv.reply(t, protocol.Message{Type: protocol.TypeComponentCreated, RequestID: createCmd.RequestID, ComponentID: createCmd.ComponentID})
				if err := <-created; err != nil {
					t.Fatal(err)
				}
			}
			ackDelete := func() {
				srv.reply(t, protocol.Message{Type: protocol.TypeComponentDeleted, RequestID: deleteCmd.RequestID, ComponentID: createCmd.ComponentID})
				if err := <-deleted; err != nil {
					t.Fatal(err)
				}
			}
			if deleteFirst {
				ackDelete()
				if items := col.Items(); len(items) != 0 {
					t.Fatalf("between acks = %+v", items)
				}
				ackCreate()
			} else {
				ackCreate()
				ackDelete()
			}

			if items := col.Items(); len(items) != 0 {
				t.Errorf("final items = %+v", items)
			}
			if n := c.Store().Pending(col.Key()); n != 0 {
				t.Errorf("pending = %d", n)
			}
		})
	}
}

func TestReorder(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil), comp(idB, 1, nil), comp(idC, 2, nil))

	updates := []models.OrderUpdate{
		{ComponentID: idC, Order: 0},
		{ComponentID: idA, Order: 1},
		{ComponentID: idB, Order: 2},
	}
	done := make(chan error, 1)
	go func() { done <- col.Reorder(context.Background(), updates) }()
	cmd := srv.next(t)
	if !reflect.DeepEqual(cmd.OrderUpdates, updates) {
		t.Fatalf("order_updates = %+v", cmd.OrderUpdates)
	}
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentOrderUpdated, RequestID: cmd.RequestID})
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	items := col.Items()
	if got := orderedIDs(items); !reflect.DeepEqual(got, []string{idC, idA, idB}) {
		t.Errorf("ids = %v", got)
	}
	if !ordering.IsDense(items) {
		t.Errorf("orders not dense: %+v", items)
	}
}

func TestNavbarCannotReorder(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	err := c.Navbar().Reorder(context.Background(), []models.OrderUpdate{{ComponentID: idA}})
	if !errors.Is(err, protocol.ErrInvalidCommand) {
		t.Errorf("err = %v", err)
	}
	srv.idle(t)
}

func TestUnknownComponentLeavesCacheUntouched(t *testing.T) {
	c, srv, rec := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, nil))
	version := c.Store().Version(col.Key())

	err := col.Update(context.Background(), idB, map[string]any{"x": 1})
	if !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("err = %v, want ErrUnknownComponent", err)
	}
	srv.idle(t)
	if v := c.Store().Version(col.Key()); v != version {
		t.Errorf("version moved %d -> %d", version, v)
	}
	if want := []NotificationKind{NotifyError}; !reflect.DeepEqual(rec.get(), want) {
		t.Errorf("notifications = %v", rec.get())
	}
}

func TestInvalidCommandIsNotSent(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv)

	_, err := col.Create(context.Background(), models.ComponentType("carousel"), nil, nil)
	if !errors.Is(err, protocol.ErrInvalidCommand) {
		t.Fatalf("err = %v", err)
	}
	srv.idle(t)
	if items := col.Items(); len(items) != 0 {
		t.Errorf("items = %+v", items)
	}
}

func TestPublishedIsReadOnly(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Page("home", models.DocumentStatusPublished)

	if err := col.Delete(context.Background(), idA); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
	srv.idle(t)
}

func TestBroadcastsAreMerged(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("home")
	seed(t, col, srv, comp(idA, 0, map[string]any{"title": "a"}))

	changed := make(chan struct{}, 8)
	stop := c.Store().Watch(func(key cache.Key, _ uint64) {
		if key == col.Key() {
			changed <- struct{}{}
		}
	})
	defer stop()
	wait := func() {
		t.Helper()
		select {
		case <-changed:
		case <-time.After(time.Second):
			t.Fatal("broadcast not applied")
		}
	}

	data, _ := protocol.EncodeData(comp(idB, 0, map[string]any{"title": "b"}))
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentCreated, Slug: "home", Status: "preview", Data: data})
	wait()
	if got := orderedIDs(col.Items()); !reflect.DeepEqual(got, []string{idB, idA}) {
		t.Fatalf("after create broadcast = %v", got)
	}

	data, _ = protocol.EncodeData(comp(idA, 1, map[string]any{"title": "changed"}))
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentUpdated, Slug: "home", Status: "preview", ComponentID: idA, Data: data})
	wait()
	if got := col.Items()[1].Data["title"]; got != "changed" {
		t.Fatalf("after update broadcast title = %v", got)
	}

	srv.reply(t, protocol.Message{Type: protocol.TypeComponentDeleted, Slug: "home", Status: "preview", ComponentID: idB})
	wait()
	items := col.Items()
	if got := orderedIDs(items); !reflect.DeepEqual(got, []string{idA}) || items[0].Order != 0 {
		t.Fatalf("after delete broadcast = %+v", items)
	}
}

func TestBroadcastForUnloadedPageIsIgnored(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	col := c.Components("about")

	data, _ := protocol.EncodeData(comp(idA, 0, nil))
	srv.reply(t, protocol.Message{Type: protocol.TypeComponentCreated, Slug: "about", Status: "preview", Data: data})
	time.Sleep(50 * time.Millisecond)

	if c.Store().Loaded(col.Key()) {
		t.Error("broadcast must not mark an unloaded page as loaded")
	}
}

func TestNavbarSingleObject(t *testing.T) {
	c, srv, _ := newTestClient(t, time.Second)
	nav := c.Navbar()

	done := make(chan error, 1)
	go func() {
		_, err := nav.Load(context.Background())
		done <- err
	}()
	cmd := srv.next(t)
	if cmd.Slug != "" {
		t.Errorf("navbar command must not carry a slug, got %q", cmd.Slug)
	}
	data, _ := protocol.EncodeData(models.Component{ComponentID: idA, ComponentType: models.ComponentTypeNavbar, Data: map[string]any{"logo": "x"}})
	srv.reply(t, protocol.Message{Type: protocol.TypeNavbar, RequestID: cmd.RequestID, Data: data})
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if items := nav.Items(); len(items) != 1 || items[0].ComponentID != idA {
		t.Errorf("navbar = %+v", items)
	}
}

func TestNotificationMessage(t *testing.T) {
	tests := []struct {
		n    Notification
		want string
	}{
		{Notification{Kind: NotifyPending, Command: "create component"}, "create component..."},
		{Notification{Kind: NotifySuccess, Command: "create component"}, "create component saved"},
		{Notification{Kind: NotifyError, Command: "delete navbar", Err: errors.New("x")}, "delete navbar failed: x"},
	}
	for _, tt := range tests {
		if got := tt.n.Message(); got != tt.want {
			t.Errorf("Message() = %q, want %q", got, tt.want)
		}
	}
}
