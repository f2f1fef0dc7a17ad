package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/thruflo/reachy-remix/internal/mdns"
)

// discoverBuilders browses the LAN for motion builders.
// It can be overridden in tests.
var discoverBuilders = mdns.Discover

var findTimeout time.Duration

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List motion builders advertised on the local network",
	Long: `Browse the local network for motion builders started with
discovery.mdns enabled and print their URLs.`,
	Args: cobra.NoArgs,
	RunE: runFind,
}

func init() {
	findCmd.Flags().DurationVar(&findTimeout, "timeout", 3*time.Second, "how long to listen for answers")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	if findTimeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", findTimeout)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()

	hosts, err := discoverBuilders(ctx)
	if err != nil {
		return fmt.Errorf("failed to browse network: %w", err)
	}
	printHosts(os.Stdout, hosts)
	return nil
}

func printHosts(w io.Writer, hosts []mdns.DiscoveredHost) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "No motion builders found.")
		return
	}

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(hosts))
	for _, h := range hosts {
		version := h.Version
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{h.Name, h.URL(), version})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("NAME", "URL", "VERSION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		})

	fmt.Fprintln(w, t)
}
