package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicepanel/internal/core"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "List panels with live signaling rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rooms []core.RoomInfo
		if err := getJSON("/api/panels", &rooms); err != nil {
			return err
		}
		renderPanels(cmd.OutOrStdout(), rooms)
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:     "members <panel-id>",
	Aliases: []string{"m"},
	Short:   "List the members connected to a panel",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var members []core.MemberDTO
		if err := getJSON("/api/panels/"+url.PathEscape(args[0])+"/members", &members); err != nil {
			return err
		}
		renderMembers(cmd.OutOrStdout(), members)
		return nil
	},
}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(flagServer + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: %s %s", path, resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func renderPanels(w io.Writer, rooms []core.RoomInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Panel", "Members"})
	total := 0
	for _, r := range rooms {
		t.AppendRow(table.Row{r.Panel, r.MemberCount})
		total += r.MemberCount
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d live", len(rooms)), total})
	t.Render()
}

func renderMembers(w io.Writer, members []core.MemberDTO) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "User ID", "Username", "Role"})
	for i, m := range members {
		t.AppendRow(table.Row{i + 1, m.ID, m.Username, m.Role})
	}
	t.Render()
}
