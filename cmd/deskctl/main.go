// deskctl is the scriptable companion to deskflow: ticket listing and
// mutation, stats, health checks, and a plain-text intake chat.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/deskflow-io/deskflow/internal/apiclient"
	"github.com/deskflow-io/deskflow/internal/config"
	"github.com/deskflow-io/deskflow/internal/conversation"
	"github.com/deskflow-io/deskflow/internal/localstate"
	"github.com/deskflow-io/deskflow/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: deskctl tickets <list|show|create|update>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: deskctl tickets show <id>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		case "create":
			cmdTicketsCreate(os.Args[3:])
		case "update":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: deskctl tickets update <id> [flags]")
				os.Exit(1)
			}
			cmdTicketsUpdate(os.Args[3], os.Args[4:])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "stats":
		cmdStats()
	case "health":
		cmdHealth()
	case "chat":
		cmdChat(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: deskctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- tickets ---

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status, comma separated (open,in_progress,resolved,closed)")
	category := fs.String("category", "", "Filter by category, comma separated")
	priority := fs.String("priority", "", "Filter by priority, comma separated")
	assignee := fs.String("assignee", "", "Filter by assignee")
	search := fs.String("search", "", "Substring search over title, description, reporter, and ID")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", 20, "Page size")
	sortBy := fs.String("sort", protocol.SortByCreatedAt, "Sort key (createdAt|updatedAt|priority|status)")
	order := fs.String("order", string(protocol.SortDesc), "Sort order (asc|desc)")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	fs.Parse(args)

	filter := protocol.TicketFilter{
		AssignedTo:  *assignee,
		SearchQuery: *search,
	}
	for _, s := range splitList(*status) {
		filter.Statuses = append(filter.Statuses, protocol.TicketStatus(s))
	}
	for _, c := range splitList(*category) {
		filter.Categories = append(filter.Categories, protocol.TicketCategory(c))
	}
	for _, p := range splitList(*priority) {
		filter.Priorities = append(filter.Priorities, protocol.TicketPriority(p))
	}

	pageResult, err := client().ListTickets(ctx(), filter, protocol.ListQuery{
		Page:      *page,
		Limit:     *limit,
		SortBy:    *sortBy,
		SortOrder: protocol.SortOrder(*order),
	})
	if err != nil {
		fail(err)
	}

	if *asJSON {
		printJSON(pageResult)
		return
	}
	fmt.Printf("%-10s %-50s %-12s %-16s %-8s %s\n", "ID", "TITLE", "STATUS", "CATEGORY", "PRIORITY", "CREATED")
	for _, t := range pageResult.Tickets {
		fmt.Printf("%-10s %-50s %-12s %-16s %-8s %s\n",
			clip(t.ID, 10), clip(t.Title, 50), t.Status, t.Category, t.Priority,
			t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("\npage %d, %d of %d tickets", pageResult.Page, len(pageResult.Tickets), pageResult.Total)
	if pageResult.HasNext {
		fmt.Printf(" (more: --page %d)", pageResult.Page+1)
	}
	fmt.Println()
}

func cmdTicketsShow(id string) {
	t, err := client().GetTicket(ctx(), id)
	if err != nil {
		fail(err)
	}
	printJSON(t)
}

func cmdTicketsCreate(args []string) {
	fs := flag.NewFlagSet("tickets create", flag.ExitOnError)
	name := fs.String("name", "", "Reporter name (required)")
	email := fs.String("email", "", "Reporter email")
	title := fs.String("title", "", "Ticket title (derived from description when omitted)")
	description := fs.String("description", "", "Issue description (required)")
	category := fs.String("category", "", "Category (suggested from the description when omitted)")
	priority := fs.String("priority", "", "Priority (low|medium|high|urgent)")
	tags := fs.String("tags", "", "Tags, comma separated")
	fs.Parse(args)

	if *name == "" || *description == "" {
		fmt.Fprintln(os.Stderr, "error: --name and --description are required")
		os.Exit(1)
	}

	req := apiclient.CreateTicketRequest{
		UserName:    *name,
		UserEmail:   *email,
		Title:       *title,
		Description: *description,
		Category:    protocol.TicketCategory(*category),
		Priority:    protocol.TicketPriority(*priority),
		Tags:        splitList(*tags),
	}
	if req.Title == "" {
		req.Title = conversation.DeriveTitle(*description)
	}
	if req.Category == "" {
		req.Category = conversation.SuggestCategory(*description)
	}

	t, err := client().CreateTicket(ctx(), req)
	if err != nil {
		fail(err)
	}
	fmt.Printf("created %s (%s / %s)\n", t.ID, t.Category, t.Status)
}

func cmdTicketsUpdate(id string, args []string) {
	fs := flag.NewFlagSet("tickets update", flag.ExitOnError)
	status := fs.String("status", "", "New status")
	priority := fs.String("priority", "", "New priority")
	category := fs.String("category", "", "New category")
	assignee := fs.String("assignee", "", "New assignee")
	title := fs.String("title", "", "New title")
	description := fs.String("description", "", "New description")
	fs.Parse(args)

	var update protocol.TicketUpdate
	if *status != "" {
		s := protocol.TicketStatus(*status)
		update.Status = &s
	}
	if *priority != "" {
		p := protocol.TicketPriority(*priority)
		update.Priority = &p
	}
	if *category != "" {
		c := protocol.TicketCategory(*category)
		update.Category = &c
	}
	if *assignee != "" {
		update.AssignedTo = assignee
	}
	if *title != "" {
		update.Title = title
	}
	if *description != "" {
		update.Description = description
	}

	t, err := client().UpdateTicket(ctx(), id, update)
	if err != nil {
		fail(err)
	}
	fmt.Printf("updated %s (%s / %s / %s)\n", t.ID, t.Status, t.Priority, t.Category)
}

// --- stats / health ---

func cmdStats() {
	stats, err := client().TicketStats(ctx())
	if err != nil {
		fail(err)
	}
	fmt.Printf("total        %d\n", stats.Total)
	fmt.Printf("open         %d\n", stats.Open)
	fmt.Printf("in progress  %d\n", stats.InProgress)
	fmt.Printf("resolved     %d\n", stats.Resolved)
	fmt.Printf("closed       %d\n", stats.Closed)
	if stats.AvgResolutionHours != nil {
		fmt.Printf("avg resolution %.1fh\n", *stats.AvgResolutionHours)
	}
	for cat, n := range stats.ByCategory {
		fmt.Printf("  %-16s %d\n", cat, n)
	}
}

func cmdHealth() {
	if err := client().Health(ctx()); err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

// --- chat ---

// cmdChat runs the guided intake in plain line-oriented mode. The
// session persists to the same local state the TUI uses, so a
// conversation started here can be resumed there.
func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	fresh := fs.Bool("new", false, "Discard any saved conversation and start over")
	fs.Parse(args)

	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := localstate.Open(cfg.Local.Dir, logger)
	if err != nil {
		fail(err)
	}
	defer store.Close()

	session := conversation.NewSession(clientFrom(cfg), store, nil, logger)
	state := session.Resume()
	if *fresh {
		state = session.Reset()
	}

	// Replay what the assistant said last so the user knows where the
	// conversation stands.
	for _, msg := range tail(state.Messages, 4) {
		printChatMessage(msg)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		resp, err := session.Send(ctx(), line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		current := session.State()
		if n := len(current.Messages); n > 0 {
			printChatMessage(current.Messages[n-1])
		}
		if len(resp.QuickReplies) > 0 {
			fmt.Printf("  (%s)\n", strings.Join(resp.QuickReplies, " / "))
		}
		if current.IsComplete {
			fmt.Printf("\nticket %s created\n", current.TicketID)
			break
		}
	}
}

func printChatMessage(msg protocol.Message) {
	prefix := "desk"
	if msg.Role == protocol.RoleUser {
		prefix = "you "
	}
	fmt.Printf("%s| %s\n", prefix, msg.Content)
}

func tail(msgs []protocol.Message, n int) []protocol.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// --- config ---

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- helpers ---

func loadConfig() *config.Config {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fail(err)
	}
	return cfg
}

func client() *apiclient.Client {
	return clientFrom(loadConfig())
}

func clientFrom(cfg *config.Config) *apiclient.Client {
	return apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		apiclient.WithRetries(cfg.API.Retries),
		apiclient.WithRetryDelay(time.Duration(cfg.API.RetryDelay)),
	)
}

func ctx() context.Context {
	return context.Background()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("deskctl — deskflow support client CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  tickets list          List tickets (--status, --category, --priority, --assignee,")
	fmt.Println("                        --search, --page, --limit, --sort, --order, --json)")
	fmt.Println("  tickets show <id>     Show one ticket as JSON")
	fmt.Println("  tickets create        Create a ticket (--name, --description, ...)")
	fmt.Println("  tickets update <id>   Update ticket fields (--status, --priority, ...)")
	fmt.Println("  stats                 Show ticket statistics")
	fmt.Println("  health                Check backend health")
	fmt.Println("  chat                  Guided intake in plain text (--new to start over)")
	fmt.Println("  config validate <p>   Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  API_BASE_URL          Backend REST origin (default: http://localhost:3001/api)")
	fmt.Println("  DESKFLOW_DATA_DIR     Local state directory (default: ~/.deskflow)")
}
