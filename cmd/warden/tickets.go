package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/pkg/client"
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Inspect and manage tickets",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		tickets, err := apiClient(cmd).ListTickets(status)
		if err != nil {
			return err
		}

		if len(tickets) == 0 {
			fmt.Println("No tickets.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSEVERITY\tKEY\tCOUNT\tHELD\tLAST SEEN")
		for _, t := range tickets {
			held := ""
			if t.Held {
				held = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				shortID(t.ID), t.Status, t.Severity, t.ViolationKey,
				t.OccurrenceCount, held, t.LastSeenAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var ticketsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := apiClient(cmd).GetTicket(args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var ticketsAckCmd = &cobra.Command{
	Use:   "ack <id>",
	Short: "Acknowledge a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient(cmd).Acknowledge(args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Ticket acknowledged")
		return nil
	},
}

var ticketsHoldCmd = &cobra.Command{
	Use:   "hold <id>",
	Short: "Hold a ticket (prevents auto-resolution)",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setHold(cmd, args[0], true) },
}

var ticketsReleaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release a held ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setHold(cmd, args[0], false) },
}

var ticketsDiagnoseCmd = &cobra.Command{
	Use:   "diagnose <id> <text>",
	Short: "Attach diagnosis text to a ticket",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient(cmd).Diagnose(args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Println("✓ Diagnosis attached")
		return nil
	},
}

func setHold(cmd *cobra.Command, id string, held bool) error {
	if _, err := apiClient(cmd).SetHeld(id, held); err != nil {
		return err
	}
	if held {
		fmt.Println("✓ Ticket held")
	} else {
		fmt.Println("✓ Ticket released")
	}
	return nil
}

func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("api")
	return client.New(addr)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	for _, c := range []*cobra.Command{
		ticketsListCmd, ticketsGetCmd, ticketsAckCmd,
		ticketsHoldCmd, ticketsReleaseCmd, ticketsDiagnoseCmd,
	} {
		c.Flags().String("api", "http://localhost:8080", "Warden API address")
		ticketsCmd.AddCommand(c)
	}
	ticketsListCmd.Flags().String("status", "", "Filter by status (open, acknowledged, diagnosed, resolved)")

	rootCmd.AddCommand(ticketsCmd)
}
