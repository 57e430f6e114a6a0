package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List and reply to buyer/seller conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		list, err := client.Conversations()
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No conversations")
			return nil
		}
		printConversations(list)
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show a conversation's messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		msgs, err := client.Messages(args[0])
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(msgs)
		}
		printMessages(msgs)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message...>",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		msg, err := client.SendMessage(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(msg)
		}
		success("Message sent (%s)", msg.ID)
		return nil
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show the number of unread messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		n, err := client.UnreadCount()
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(map[string]int64{"count": n})
		}
		fmt.Printf("%d unread message(s)\n", n)
		return nil
	},
}

func authedClient() (*APIClient, error) {
	token, err := requireToken()
	if err != nil {
		return nil, err
	}
	return newAPIClient(viper.GetString("api_url"), token), nil
}

func init() {
	conversationsCmd.AddCommand(messagesCmd, sendCmd, unreadCmd)
}
