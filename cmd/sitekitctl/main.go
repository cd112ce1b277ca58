// Package main is sitekitctl, a command line editor for SiteKit pages. Each
// command opens one sync session, applies the change through the optimistic
// client and prints the resulting list as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"sitekit/internal/cache"
	"sitekit/internal/client"
	"sitekit/internal/models"
)

const SitekitCtlVersion = "0.1.0"

const usage = `SiteKit control.

A target is "navbar", "footer" or a page slug. Page commands edit the
preview state; --published selects the read-only published state.

Usage:
    sitekitctl list [options] <target>
    sitekitctl create [options] <target> <type> [<data>] [--index=<index>]
    sitekitctl update [options] <target> <id> <data>
    sitekitctl replace [options] <target> <id> <type> [<data>] [--order=<order>]
    sitekitctl delete [options] <target> <id>
    sitekitctl reorder [options] <target> <id>...
    sitekitctl watch [options] <target>
    sitekitctl -h | --help
    sitekitctl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --url=<url>            Sync endpoint [default: ws://localhost:8080/ws].
    --timeout=<timeout>    How long to wait for each reply [default: 10s].
    --published            Use the published state of a page.
    --index=<index>        Position of a created component.
    --order=<order>        New position of a replaced component.`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SitekitCtlVersion)
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func run(ctx context.Context, opts docopt.Opts) error {
	url, _ := opts.String("--url")
	timeoutStr, _ := opts.String("--timeout")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("--timeout: %w", err)
	}

	c, err := client.ConnectWithTimeout(ctx, url, nil, timeout,
		client.WithNotifier(client.LogNotifier{}))
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer c.Close()

	col, err := collection(c, opts)
	if err != nil {
		return err
	}
	if _, err := col.Load(ctx); err != nil {
		return fmt.Errorf("load %s: %w", col.Key(), err)
	}

	if list_, _ := opts.Bool("list"); list_ {
		return printJSON(col.Items())
	} else if create_, _ := opts.Bool("create"); create_ {
		return create(ctx, col, opts)
	} else if update_, _ := opts.Bool("update"); update_ {
		return update(ctx, col, opts)
	} else if replace_, _ := opts.Bool("replace"); replace_ {
		return replace(ctx, col, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		id, _ := opts.String("<id>")
		if err := col.Delete(ctx, firstID(opts, id)); err != nil {
			return err
		}
		return printJSON(col.Items())
	} else if reorder_, _ := opts.Bool("reorder"); reorder_ {
		return reorder(ctx, col, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		return watch(ctx, c, col)
	}
	return nil
}

func collection(c *client.Client, opts docopt.Opts) (*client.Collection, error) {
	target, _ := opts.String("<target>")
	published, _ := opts.Bool("--published")

	switch target {
	case "navbar":
		return c.Navbar(), nil
	case "footer":
		return c.Footer(), nil
	case "":
		return nil, fmt.Errorf("missing target")
	}
	if published {
		return c.Page(target, models.DocumentStatusPublished), nil
	}
	return c.Components(target), nil
}

func create(ctx context.Context, col *client.Collection, opts docopt.Opts) error {
	typ, _ := opts.String("<type>")
	data, err := parseData(opts)
	if err != nil {
		return err
	}
	index, err := optionalInt(opts, "--index")
	if err != nil {
		return err
	}

	comp, err := col.Create(ctx, models.ComponentType(typ), data, index)
	if err != nil {
		return err
	}
	return printJSON(comp)
}

func update(ctx context.Context, col *client.Collection, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	patch, err := parseData(opts)
	if err != nil {
		return err
	}
	if err := col.Update(ctx, firstID(opts, id), patch); err != nil {
		return err
	}
	return printJSON(col.Items())
}

func replace(ctx context.Context, col *client.Collection, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	typ, _ := opts.String("<type>")
	data, err := parseData(opts)
	if err != nil {
		return err
	}
	order, err := optionalInt(opts, "--order")
	if err != nil {
		return err
	}
	if err := col.Replace(ctx, firstID(opts, id), models.ComponentType(typ), data, order); err != nil {
		return err
	}
	return printJSON(col.Items())
}

// reorder places the given ids at positions 0..n-1 in argument order.
func reorder(ctx context.Context, col *client.Collection, opts docopt.Opts) error {
	ids, _ := opts["<id>"].([]string)
	updates := make([]models.OrderUpdate, len(ids))
	for i, id := range ids {
		updates[i] = models.OrderUpdate{ComponentID: id, Order: i}
	}
	if err := col.Reorder(ctx, updates); err != nil {
		return err
	}
	return printJSON(col.Items())
}

// watch prints the list every time another session changes it.
func watch(ctx context.Context, c *client.Client, col *client.Collection) error {
	if err := printJSON(col.Items()); err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	unwatch := c.Store().Watch(func(key cache.Key, _ uint64) {
		if key != col.Key() {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unwatch()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := printJSON(col.Items()); err != nil {
				return err
			}
		}
	}
}

// firstID accepts <id> both as a single value and as the repeated form
// docopt produces when another usage line declares <id>...
func firstID(opts docopt.Opts, id string) string {
	if id != "" {
		return id
	}
	if ids, ok := opts["<id>"].([]string); ok && len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func parseData(opts docopt.Opts) (map[string]any, error) {
	raw, _ := opts.String("<data>")
	data := map[string]any{}
	if raw == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("<data> must be a JSON object: %w", err)
	}
	return data, nil
}

func optionalInt(opts docopt.Opts, name string) (*int, error) {
	raw, _ := opts.String(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &n, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
