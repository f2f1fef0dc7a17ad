package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thruflo/reachy-remix/internal/motion"
)

// movesLibrary is the library used by the moves commands.
// It can be overridden in tests.
var movesLibrary motion.Library

var movesCmd = &cobra.Command{
	Use:   "moves",
	Short: "Manage saved moves",
}

var movesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved moves",
	Args:  cobra.NoArgs,
	RunE:  runMovesList,
}

var movesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved move",
	Args:  cobra.ExactArgs(1),
	RunE:  runMovesDelete,
}

func init() {
	movesCmd.AddCommand(movesListCmd)
	movesCmd.AddCommand(movesDeleteCmd)
	rootCmd.AddCommand(movesCmd)
}

// withLibrary runs fn with movesLibrary, or with the configured store.
func withLibrary(cmd *cobra.Command, fn func(ctx context.Context, lib motion.Library) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if movesLibrary != nil {
		return fn(ctx, movesLibrary)
	}

	cfg, base, _, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openLibrary(ctx, cfg, base)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func runMovesList(cmd *cobra.Command, args []string) error {
	return withLibrary(cmd, func(ctx context.Context, lib motion.Library) error {
		moves, err := lib.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list moves: %w", err)
		}
		printMoves(os.Stdout, moves)
		return nil
	})
}

func runMovesDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid move id %q: %w", args[0], err)
	}

	return withLibrary(cmd, func(ctx context.Context, lib motion.Library) error {
		if err := lib.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete move: %w", err)
		}
		fmt.Printf("Deleted move %s\n", id)
		return nil
	})
}

func printMoves(w io.Writer, moves []motion.Move) {
	if len(moves) == 0 {
		fmt.Fprintln(w, "No moves saved.")
		return
	}

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameCell := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(moves))
	for _, m := range moves {
		s := m.Summarize()
		rows = append(rows, []string{
			s.ID.String(),
			s.Name,
			strconv.Itoa(s.Keyframes),
			s.Duration.String(),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "NAME", "KEYFRAMES", "DURATION", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			if col == 1 {
				return nameCell
			}
			return cell
		})

	fmt.Fprintln(w, t)
}
