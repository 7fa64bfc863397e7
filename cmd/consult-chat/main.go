package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"telechat/internal/client"
	"telechat/internal/config"
	"telechat/internal/models"
	"telechat/internal/rest"
	"telechat/internal/session"
	"telechat/internal/ws"
)

var (
	name      = flag.String("name", "", "Participant name to log in as")
	role      = flag.String("role", "patient", "Participant role: patient or doctor")
	sessionID = flag.Int("session", 0, "Session id to join (0 with -with starts a new one)")
	withID    = flag.Int("with", 0, "Counterpart user id when starting a new session")
)

func main() {
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "Usage: consult-chat -name <name> -role <patient|doctor> [-session <id> | -with <user-id>]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	api := rest.NewClient(cfg.APIBaseURL, "")
	token, user, err := api.Login(ctx, *name, models.Role(*role))
	if err != nil {
		return err
	}

	sid := *sessionID
	if sid == 0 {
		if *withID == 0 {
			return fmt.Errorf("either -session or -with is required")
		}
		doctorID, userID := user.ID, *withID
		if user.Role == models.RolePatient {
			doctorID, userID = *withID, user.ID
		}
		sid, err = api.CreateChat(ctx, doctorID, userID)
		if err != nil {
			return err
		}
		fmt.Printf("Started session %d\n", sid)
	}

	mine := color.New(color.FgGreen, color.Bold).SprintFunc()
	theirs := color.New(color.FgCyan, color.Bold).SprintFunc()
	system := color.New(color.FgYellow, color.Italic).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	printMessage := func(m models.Message) {
		switch {
		case m.Kind == models.MessageKindAlert:
			fmt.Printf("        %s\n", system("-- "+m.Body+" --"))
		case m.SenderID == user.ID:
			fmt.Printf("%s %s\n", mine("You:"), renderBody(m))
		default:
			fmt.Printf("%s %s\n", theirs("Them:"), renderBody(m))
		}
	}

	c := client.New(client.Config{
		APIBaseURL: cfg.APIBaseURL,
		WSBaseURL:  cfg.WSBaseURL,
		Token:      token,
		UserID:     user.ID,
		Role:       user.Role,
		SessionID:  sid,
		OnMessage:  printMessage,
		OnTyping: func(remote bool) {
			if remote {
				fmt.Println(faint("Them: typing..."))
			}
		},
		OnState: func(s ws.State) {
			fmt.Println(faint("[connection " + s.String() + "]"))
		},
		OnCountdownTick: func(remaining int) {
			fmt.Printf("\r%s", faint(fmt.Sprintf("Ending chat in %ds...", remaining)))
			if remaining <= 0 {
				fmt.Println()
			}
		},
	})

	if err := c.Mount(ctx); err != nil {
		return err
	}
	defer c.Unmount()

	for _, m := range c.Messages() {
		printMessage(m)
	}

	fmt.Println(faint("Type a message and press Enter. Commands: /attach <file>, /end, /quit"))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return nil
		case line == "/end":
			if c.Phase() != session.PhaseActive {
				fmt.Println(system("Session is not active."))
				continue
			}
			if err := c.End(ctx); err != nil {
				fmt.Println(system("End chat failed: " + err.Error()))
			}
		case strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Println(system("Read failed: " + err.Error()))
				continue
			}
			staged, err := c.StageAttachment(path, data, nil)
			if err != nil {
				fmt.Println(system("Attachment rejected: " + err.Error()))
				continue
			}
			fmt.Println(faint(fmt.Sprintf("Staged %s (%s, %d bytes). Next message sends it.", path, staged.MIME, staged.Size())))
		case line == "":
			continue
		default:
			c.Keystroke()
			if err := c.Send(line); err != nil {
				fmt.Println(system("Send failed: " + err.Error()))
			}
		}
	}
	return scanner.Err()
}

func renderBody(m models.Message) string {
	if m.Attachment != "" {
		label := fmt.Sprintf("[attachment, %d bytes base64]", len(m.Attachment))
		if m.Body != "" {
			return m.Body + " " + label
		}
		return label
	}
	return m.Body
}
