package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/curamed/medisync/internal/ctl"
	"github.com/curamed/medisync/internal/profile"
	"github.com/curamed/medisync/internal/store"
	"github.com/curamed/medisync/internal/sync"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := ctl.New(profile.SocketPath(profileName))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "sync":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: medisyncctl sync <now|force|status>")
			os.Exit(1)
		}
		cmdSync(ctx, c, args[1], *jsonFlag)
	case "orders":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: medisyncctl orders <list|show|place>")
			os.Exit(1)
		}
		cmdOrders(ctx, c, args[1:], *jsonFlag)
	case "notifications":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: medisyncctl notifications <list|read>")
			os.Exit(1)
		}
		cmdNotifications(ctx, c, args[1:], *jsonFlag)
	case "products":
		cmdProducts(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: medisyncctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status               Show daemon status")
	fmt.Fprintln(os.Stderr, "  sync now             Request a sync cycle (non-blocking)")
	fmt.Fprintln(os.Stderr, "  sync force           Run a sync cycle and wait for the result")
	fmt.Fprintln(os.Stderr, "  sync status          Show sync status")
	fmt.Fprintln(os.Stderr, "  orders list          List orders")
	fmt.Fprintln(os.Stderr, "  orders show <id>     Show one order")
	fmt.Fprintln(os.Stderr, "  orders place [file]  Place an order from a JSON file or stdin")
	fmt.Fprintln(os.Stderr, "  notifications list   List unread notifications")
	fmt.Fprintln(os.Stderr, "  notifications read <id>  Mark a notification read")
	fmt.Fprintln(os.Stderr, "  products list        List the product catalog")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	var resp struct {
		Profile string      `json:"profile"`
		Online  bool        `json:"online"`
		Sync    sync.Status `json:"sync"`
	}
	if err := c.Get(ctx, "/status", &resp); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	online := "offline"
	if resp.Online {
		online = "online"
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("Portal:   %s\n", online)
	fmt.Printf("Phase:    %s\n", resp.Sync.Phase)
	fmt.Printf("Queued:   %d pending operations\n", resp.Sync.PendingOps)
	if resp.Sync.HasLastSync {
		fmt.Printf("Last sync: %s\n", resp.Sync.LastSyncTime.Local().Format(time.RFC1123))
	} else {
		fmt.Println("Last sync: never")
	}
}

func cmdSync(ctx context.Context, c *ctl.Client, subcmd string, jsonOut bool) {
	switch subcmd {
	case "now":
		if err := c.Post(ctx, "/sync", nil, nil); err != nil {
			fail(err)
		}
		fmt.Println("Sync requested.")
	case "force":
		var sum sync.Summary
		if err := c.Post(ctx, "/sync/force", nil, &sum); err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(sum)
			return
		}
		fmt.Printf("Uploaded:  %d\n", sum.Uploaded)
		fmt.Printf("Failed:    %d\n", sum.Failed)
		fmt.Printf("Abandoned: %d\n", sum.Abandoned)
		fmt.Printf("Merged:    %d\n", sum.Merged)
		fmt.Printf("Skipped:   %d\n", sum.Skipped)
	case "status":
		var st sync.Status
		if err := c.Get(ctx, "/sync/status", &st); err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(st)
			return
		}
		fmt.Printf("Syncing: %v\n", st.IsSyncing)
		fmt.Printf("Phase:   %s\n", st.Phase)
		if st.HasLastSync {
			fmt.Printf("Last sync: %s\n", st.LastSyncTime.Local().Format(time.RFC1123))
		} else {
			fmt.Println("Last sync: never")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown sync subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdOrders(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	switch args[0] {
	case "list":
		var orders []store.Order
		if err := c.Get(ctx, "/orders", &orders); err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(orders)
			return
		}
		if len(orders) == 0 {
			fmt.Println("No orders.")
			return
		}
		for _, o := range orders {
			fmt.Printf("%-6d %-20s %-10s %-8s %s\n",
				o.ID, o.CustomerName, o.Status, o.SyncStatus, o.OrderDate.Local().Format("2006-01-02 15:04"))
		}
	case "show":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: medisyncctl orders show <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid order id %q", args[1]))
		}
		var o store.Order
		if err := c.Get(ctx, fmt.Sprintf("/orders/%d", id), &o); err != nil {
			fail(err)
		}
		outputJSON(o)
	case "place":
		data, err := readOrderInput(args[1:])
		if err != nil {
			fail(err)
		}
		var o store.Order
		if err := json.Unmarshal(data, &o); err != nil {
			fail(fmt.Errorf("invalid order JSON: %w", err))
		}
		var created store.Order
		if err := c.Post(ctx, "/orders", o, &created); err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(created)
			return
		}
		fmt.Printf("Order %d placed (sync status: %s).\n", created.ID, created.SyncStatus)
	default:
		fmt.Fprintf(os.Stderr, "unknown orders subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func readOrderInput(args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func cmdNotifications(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	switch args[0] {
	case "list":
		var notifications []store.Notification
		if err := c.Get(ctx, "/notifications?unread=true", &notifications); err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(notifications)
			return
		}
		if len(notifications) == 0 {
			fmt.Println("No unread notifications.")
			return
		}
		for _, n := range notifications {
			fmt.Printf("%-6d [%s] %s\n", n.ID, n.Type, n.Title)
		}
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: medisyncctl notifications read <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid notification id %q", args[1]))
		}
		if err := c.Post(ctx, fmt.Sprintf("/notifications/%d/read", id), nil, nil); err != nil {
			fail(err)
		}
		fmt.Println("Marked read.")
	default:
		fmt.Fprintf(os.Stderr, "unknown notifications subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdProducts(ctx context.Context, c *ctl.Client, jsonOut bool) {
	var products []store.Product
	if err := c.Get(ctx, "/products", &products); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(products)
		return
	}
	if len(products) == 0 {
		fmt.Println("No products.")
		return
	}
	for _, p := range products {
		stock := "out of stock"
		if p.InStock {
			stock = "in stock"
		}
		fmt.Printf("%-6d %-30s %-15s %s\n", p.ID, p.Name, p.Category, stock)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
