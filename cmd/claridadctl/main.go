package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/claridad-app/claridad/internal/api"
	"github.com/claridad-app/claridad/internal/chat"
	"github.com/claridad-app/claridad/internal/client"
	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/daemon"
	"github.com/claridad-app/claridad/internal/invite"
	"github.com/claridad-app/claridad/internal/lock"
	"github.com/claridad-app/claridad/internal/session"
)

func main() {
	instanceFlag := flag.String("instance", "", "daemon instance name (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fail(fmt.Errorf("load config: %w", err))
	}

	instance := cfg.InstanceName(*instanceFlag)
	if err := session.ValidateName(instance); err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if args[0] == "status" {
		cmdStatus(ctx, instance, *jsonFlag)
		return
	}

	c, err := client.New(cfg.Server.BaseURL, cfg.Chat.HTTPTimeout.Duration, nil)
	if err != nil {
		fail(err)
	}
	cli := &ctl{client: c, cfg: cfg, json: *jsonFlag}

	switch args[0] {
	case "channels":
		cli.channels(ctx)
	case "join":
		cli.join(ctx, strings.Join(args[1:], " "))
	case "send":
		cli.send(ctx, strings.Join(args[1:], " "))
	case "panic":
		cli.sendPanic(ctx, args[1:])
	case "messages":
		cli.messages(ctx, args[1:])
	case "search":
		cli.search(ctx, strings.Join(args[1:], " "))
	case "invite":
		cli.invite(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: claridadctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  channels                        List neighborhood channels")
	fmt.Fprintln(os.Stderr, "  join <neighborhood>             Join a neighborhood channel")
	fmt.Fprintln(os.Stderr, "  send <text>                     Send a message to your channel")
	fmt.Fprintln(os.Stderr, "  panic [--lat N --lng N] <text>  Send a panic alert")
	fmt.Fprintln(os.Stderr, "  messages [--limit N]            Show recent messages")
	fmt.Fprintln(os.Stderr, "  search <query>                  Search your channel")
	fmt.Fprintln(os.Stderr, "  invite                          Print a join link and QR code")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, instance string, jsonOut bool) {
	holder, held, err := lock.Read(session.Dir(instance))
	if err != nil {
		fail(err)
	}
	serving, healthErr := daemon.CheckHealth(ctx, session.SocketPath(instance))

	if jsonOut {
		out := map[string]any{
			"instance": instance,
			"running":  held,
			"health":   serving.String(),
		}
		if held {
			out["pid"] = holder.PID
			out["addr"] = holder.Addr
			out["started"] = holder.Started
		}
		outputJSON(out)
		return
	}
	fmt.Printf("Instance: %s\n", instance)
	if !held {
		fmt.Println("Daemon:   not running")
		return
	}
	fmt.Printf("Daemon:   PID %d on %s\n", holder.PID, holder.Addr)
	if !holder.Started.IsZero() {
		fmt.Printf("Uptime:   %s\n", time.Since(holder.Started).Truncate(time.Second))
	}
	if healthErr != nil {
		fmt.Printf("Health:   unreachable (%v)\n", healthErr)
		return
	}
	fmt.Printf("Health:   %s\n", serving)
}

type ctl struct {
	client *client.Client
	cfg    *config.Config
	json   bool
}

func (c *ctl) identity() config.IdentityConfig {
	id := c.cfg.Identity
	if err := session.ValidateUserID(id.UserID); err != nil {
		fail(fmt.Errorf("identity.user_id in %s: %w", session.ConfigPath(), err))
	}
	return id
}

// userChannel resolves the channel of the configured user, joining the
// configured neighborhood when the user has none yet.
func (c *ctl) userChannel(ctx context.Context) *chat.Channel {
	id := c.identity()
	ch, err := c.client.ResolveUserChannel(ctx, id.UserID)
	if err != nil {
		fail(err)
	}
	if ch != nil {
		return ch
	}
	if id.Neighborhood == "" {
		fail(fmt.Errorf("user %q has no channel; run `claridadctl join <neighborhood>`", id.UserID))
	}
	ch, err = c.client.Join(ctx, id.Neighborhood, id.UserID, id.UserName)
	if err != nil {
		fail(err)
	}
	return ch
}

func (c *ctl) channels(ctx context.Context) {
	list, err := c.client.Channels(ctx)
	if err != nil {
		fail(err)
	}
	if c.json {
		out := make([]api.Channel, 0, len(list))
		for _, ch := range list {
			out = append(out, api.ChannelToWire(ch))
		}
		outputJSON(out)
		return
	}
	if len(list) == 0 {
		fmt.Println("No channels found.")
		return
	}
	for _, ch := range list {
		fmt.Printf("%-32s %-24s %d members\n", ch.ID, ch.NeighborhoodLabel, len(ch.ParticipantIDs))
	}
}

func (c *ctl) join(ctx context.Context, neighborhood string) {
	if neighborhood == "" {
		fmt.Fprintln(os.Stderr, "usage: claridadctl join <neighborhood>")
		os.Exit(1)
	}
	id := c.identity()
	ch, err := c.client.Join(ctx, neighborhood, id.UserID, id.UserName)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(api.ChannelToWire(*ch))
		return
	}
	fmt.Printf("Joined %s (%s)\n", ch.NeighborhoodLabel, ch.ID)
}

func (c *ctl) send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: claridadctl send <text>")
		os.Exit(1)
	}
	c.post(ctx, text, chat.TypeNormal, nil)
}

func (c *ctl) sendPanic(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("panic", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude of the alert")
	lng := fs.Float64("lng", 0, "longitude of the alert")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: claridadctl panic [--lat N --lng N] <text>")
		os.Exit(1)
	}

	var loc *chat.Location
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	switch {
	case set["lat"] && set["lng"]:
		now := time.Now()
		loc = &chat.Location{Lat: *lat, Lng: *lng, Timestamp: &now}
	case set["lat"] || set["lng"]:
		fail(fmt.Errorf("--lat and --lng must be given together"))
	default:
		loc = c.cfg.Identity.HomeLocation()
	}

	var md *chat.Metadata
	if loc != nil {
		md = &chat.Metadata{Location: loc}
	}
	c.post(ctx, text, chat.TypePanic, md)
}

func (c *ctl) post(ctx context.Context, text string, typ chat.MessageType, md *chat.Metadata) {
	id := c.identity()
	ch := c.userChannel(ctx)
	msg, err := c.client.Post(ctx, chat.NewMessage{
		ChannelID: ch.ID,
		UserID:    id.UserID,
		UserName:  id.UserName,
		Text:      text,
		Type:      typ,
		Metadata:  md,
	})
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(api.MessageToWire(msg))
		return
	}
	fmt.Printf("Sent %s to %s\n", msg.ID, ch.NeighborhoodLabel)
}

func (c *ctl) messages(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of messages to show")
	_ = fs.Parse(args)

	ch := c.userChannel(ctx)
	msgs, err := c.client.ListMessages(ctx, ch.ID, *limit)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(api.MessagesToWire(msgs))
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, m := range msgs {
		printMessage(m)
	}
}

func (c *ctl) search(ctx context.Context, query string) {
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: claridadctl search <query>")
		os.Exit(1)
	}
	ch := c.userChannel(ctx)
	results, err := c.client.Search(ctx, ch.ID, query, 50)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		m := api.MessageFromWire(r.Message)
		snippet := strings.NewReplacer("<<", "", ">>", "").Replace(r.Snippet)
		fmt.Printf("%s  %-16s %s\n", m.Timestamp.Local().Format("01/02 15:04"), sender(m), snippet)
	}
}

func (c *ctl) invite(ctx context.Context) {
	ch := c.userChannel(ctx)
	link, err := invite.Link(c.cfg.Server.InviteURL, ch.ID)
	if err != nil {
		fail(err)
	}
	if c.json {
		outputJSON(map[string]string{"channel": ch.ID, "neighborhood": ch.NeighborhoodLabel, "link": link})
		return
	}
	qr, err := invite.RenderQR(link, "  ")
	if err != nil {
		fail(err)
	}
	fmt.Printf("Invite to %s\n\n%s\n  %s\n", ch.NeighborhoodLabel, qr, link)
}

func printMessage(m chat.Message) {
	prefix := ""
	if m.Type == chat.TypePanic {
		prefix = "PANIC "
	}
	fmt.Printf("%s  %-16s %s%s\n", m.Timestamp.Local().Format("01/02 15:04"), sender(m), prefix, m.Text)
	if md := m.Metadata; md != nil && md.Location != nil {
		fmt.Printf("%18s @ %.5f, %.5f\n", "", md.Location.Lat, md.Location.Lng)
	}
}

func sender(m chat.Message) string {
	switch {
	case m.Metadata != nil && m.Metadata.Anonymous:
		return "Anonymous"
	case m.UserName != "":
		return m.UserName
	default:
		return m.UserID
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
