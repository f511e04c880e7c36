package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/T1murKa41/pixilgnang/internal/config"
	"github.com/T1murKa41/pixilgnang/internal/delivery"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("pixilgnang setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token", cfg.Telegram.Token)
		cfg.Telegram.ModeratorChatID = promptInt(scanner, "Moderator chat id", cfg.Telegram.ModeratorChatID)
		cfg.Telegram.LogChatID = promptInt(scanner, "Log chat id (0 to disable)", cfg.Telegram.LogChatID)
		cfg.CooldownSeconds = int(promptInt(scanner, "Seconds between posts to one channel", int64(cfg.CooldownSeconds)))
		cfg.WatermarkPath = prompt(scanner, "Watermark image path (optional)", cfg.WatermarkPath)

		fmt.Println()
		fmt.Println("Destinations: enter a key (letters, digits, underscore), or leave empty to finish.")
		for {
			key := prompt(scanner, "Destination key", "")
			if key == "" {
				break
			}
			if err := delivery.ValidateKey(key); err != nil {
				fmt.Println(" ", err)
				continue
			}
			d := config.Destination{Key: key}
			d.ChatID = promptInt(scanner, "  Chat id", 0)
			d.Title = prompt(scanner, "  Title", key)
			d.Link = prompt(scanner, "  Public link (optional)", "")
			cfg.Destinations = upsertDestination(cfg.Destinations, d)
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Validate(); err != nil {
			fmt.Println("Still missing before serve can start:")
			fmt.Println(err)
		}
		return nil
	},
}

func upsertDestination(list []config.Destination, d config.Destination) []config.Destination {
	for i := range list {
		if list[i].Key == d.Key {
			list[i] = d
			return list
		}
	}
	return append(list, d)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func promptInt(scanner *bufio.Scanner, label string, defaultVal int64) int64 {
	def := ""
	if defaultVal != 0 {
		def = strconv.FormatInt(defaultVal, 10)
	}
	for {
		s := prompt(scanner, label, def)
		if s == "" {
			return defaultVal
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n
		}
		fmt.Printf("  %q is not a number\n", s)
	}
}
