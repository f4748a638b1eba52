// Command chat is an interactive terminal client for the askdocs API. It
// logs in (registering on first use with -register), then loops reading
// questions and printing the retrieval-grounded answers.
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
	"time"

	"github.com/fatih/color"
)

func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080", "askdocs API base URL")
		email    = flag.String("email", "", "account email")
		password = flag.String("password", "", "account password")
		register = flag.Bool("register", false, "create the account before logging in")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -email you@example.com -password pw [-register]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(*apiURL, 2*time.Minute)

	var token string
	var err error
	if *register {
		token, err = client.Register(ctx, *email, *password)
	} else {
		token, err = client.Login(ctx, *email, *password)
	}
	if err != nil {
		color.Red("login failed: %v", err)
		os.Exit(1)
	}

	bold := color.New(color.Bold)
	bold.Printf("askdocs chat, signed in as %s\n", *email)
	fmt.Println(`Ask questions about your uploaded documents. Type "exit" to quit.`)

	prompt := color.New(color.FgCyan, color.Bold)
	answerColor := color.New(color.FgGreen)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := client.Ask(ctx, token, question)
		if err != nil {
			color.Red("error: %v", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		answerColor.Printf("askdocs> %s\n\n", answer)
	}
	fmt.Println("bye")
}
