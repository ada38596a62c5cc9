package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wizterm/wizterm/internal/layout"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Inspect and maintain the saved pane layout",
}

var layoutShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved pane layout as a tree",
	RunE:  runLayoutShow,
}

var layoutClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved layout so the next start begins empty",
	RunE:  runLayoutClear,
}

func init() {
	layoutCmd.AddCommand(layoutShowCmd)
	layoutCmd.AddCommand(layoutClearCmd)
	rootCmd.AddCommand(layoutCmd)
}

func runLayoutShow(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	layoutJSON, treeVersion, ok, err := app.Layouts.Load(app.Ctx())
	if err != nil {
		return err
	}
	if !ok {
		cmd.Println("no saved layout")
		return nil
	}

	tree := layout.Deserialize(layoutJSON)
	if tree == nil {
		return fmt.Errorf("saved layout is unreadable; run 'wizterm layout clear' to reset it")
	}

	cmd.Printf("revision %d\n", treeVersion)
	if tree.IsEmpty() {
		cmd.Println("(empty)")
		return nil
	}
	printNode(cmd, tree.Root, 0, 100)
	return nil
}

func printNode(cmd *cobra.Command, n *layout.Node, depth int, share float64) {
	indent := strings.Repeat("  ", depth)
	if n.IsLeaf() {
		switch n.Kind {
		case layout.KindBrowser:
			cmd.Printf("%s%.1f%% browser %s %s\n", indent, share, n.ID, n.Payload.URL)
		default:
			cmd.Printf("%s%.1f%% terminal %s session=%s\n", indent, share, n.ID, n.Payload.SessionID)
		}
		return
	}

	axis := "row"
	if n.Axis == layout.AxisVertical {
		axis = "column"
	}
	cmd.Printf("%s%.1f%% %s %s\n", indent, share, axis, n.ID)
	for i, child := range n.Children {
		printNode(cmd, child, depth+1, n.Sizes[i])
	}
}

func runLayoutClear(cmd *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	if err := app.Layouts.Clear(app.Ctx()); err != nil {
		return err
	}
	cmd.Println("saved layout cleared")
	return nil
}
