package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	dimmed = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
)

func success(format string, args ...interface{}) {
	fmt.Println(green("✓ "+format, args...))
}

func warn(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, yellow("! "+format, args...))
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printProfiles(list []profile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, bold("ID")+"\t"+bold("EMAIL")+"\t"+bold("NAME")+"\t"+bold("USERNAME"))
	for _, p := range list {
		username := ""
		if p.Username != nil {
			username = "@" + *p.Username
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Email, p.FullName, username)
	}
	_ = w.Flush()
}

func printConversations(list []conversation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, bold("ID")+"\t"+bold("WITH")+"\t"+bold("LISTING")+"\t"+bold("UNREAD")+"\t"+bold("LAST MESSAGE"))
	for _, c := range list {
		with := c.OtherParticipant.FullName
		if with == "" {
			with = c.OtherParticipant.Email
		}
		listing := dimmed("(deleted)")
		if c.Product != nil {
			listing = fmt.Sprintf("%s · %s", c.Product.Brand, c.Product.Title)
		}
		last := ""
		if c.LastMessage != nil {
			last = truncate(c.LastMessage.Content, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, with, listing, c.UnreadCount, last)
	}
	_ = w.Flush()
}

func printMessages(msgs []message) {
	for _, m := range msgs {
		status := ""
		if !m.Read {
			status = yellow(" •")
		}
		fmt.Printf("%s %s%s\n  %s\n", dimmed(m.CreatedAt.Local().Format("02/01 15:04")), bold(m.SenderID), status, m.Content)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
