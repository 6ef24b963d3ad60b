package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/persona/internal/api"
	"github.com/kalambet/persona/internal/config"
	"github.com/kalambet/persona/internal/rapidapi"
	"github.com/kalambet/persona/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Reply to a message in the voice of an account",
	Long: `Reply to a message in the voice of an account.

Examples:
  persona chat --username elonmusk --message "what do you think about rain?"
  persona chat -u @nasa -m "any plans for the weekend?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		message, _ := cmd.Flags().GetString("message")
		if username == "" || message == "" {
			return fmt.Errorf("--username and --message are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		reply, err := sendChat(cmd.Context(), client, username, message)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	chatCmd.Flags().StringP("username", "u", "", "account handle to impersonate")
	chatCmd.Flags().StringP("message", "m", "", "message to reply to")
}

func sendChat(ctx context.Context, client *apiClient, username, message string) (string, error) {
	resp, err := client.post(ctx, "/api/chat", api.ChatRequest{Username: username, Message: message})
	if err != nil {
		return "", err
	}
	var out api.ChatResponse
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile <username>",
	Short: "Show the public profile of an account as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/twitter?username="+url.QueryEscape(args[0]))
		if err != nil {
			return err
		}

		var p rapidapi.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(os.Stdout, p)
	},
}

// --- pools ---

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Show credential pool health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		pools, err := fetchPools(cmd.Context(), client)
		if err != nil {
			return err
		}
		printPools(os.Stdout, pools)
		return nil
	},
}

func fetchPools(ctx context.Context, client *apiClient) ([]api.PoolStatus, error) {
	resp, err := client.get(ctx, "/api/pools")
	if err != nil {
		return nil, err
	}
	var pools []api.PoolStatus
	if err := decodeJSON(resp, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// --- saved profiles ---

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage saved profiles",
}

var savedAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Fetch a profile and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/profiles", map[string]string{"username": args[0]})
		if err != nil {
			return err
		}
		var sp storage.SavedProfile
		if err := decodeJSON(resp, &sp); err != nil {
			return err
		}
		printSuccess("Saved @%s (%s)", sp.Profile.Username, sp.ID)
		return nil
	},
}

var savedListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List saved profiles, optionally filtered by name or username",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", limit))
		if len(args) == 1 {
			q.Set("q", args[0])
		}
		resp, err := client.get(cmd.Context(), "/api/profiles?"+q.Encode())
		if err != nil {
			return err
		}

		var profiles []storage.SavedProfile
		if err := decodeJSON(resp, &profiles); err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No saved profiles.")
			return nil
		}
		for _, sp := range profiles {
			fmt.Println(formatSavedProfile(sp))
		}
		return nil
	},
}

var savedShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show a saved profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var sp storage.SavedProfile
		if err := decodeJSON(resp, &sp); err != nil {
			return err
		}
		return printJSON(os.Stdout, sp)
	},
}

var savedRemoveCmd = &cobra.Command{
	Use:     "rm <username>",
	Aliases: []string{"delete"},
	Short:   "Delete a saved profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted @%s", strings.TrimPrefix(args[0], "@"))
		return nil
	},
}

func init() {
	savedListCmd.Flags().Int("limit", 50, "maximum number of profiles to list")
	savedCmd.AddCommand(savedAddCmd)
	savedCmd.AddCommand(savedListCmd)
	savedCmd.AddCommand(savedShowCmd)
	savedCmd.AddCommand(savedRemoveCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUnchecked()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		fmt.Printf("\n  settings: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a credential (rapidapi.keys, llm.keys, server.api_token)",
	Long: `Store a credential in the secrets file.

List keys take a comma-separated value:
  persona config set-secret rapidapi.keys key1,key2,key3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
