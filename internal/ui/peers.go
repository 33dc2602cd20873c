package ui

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mossy-p/telecare-signaling/internal/session"
)

// PeerTable renders one row per PeerLink, with the media last seen on its tile
func PeerTable(links []session.LinkInfo, tiles []session.Tile) string {
	if len(links) == 0 {
		return MutedStyle.Render("No other participants")
	}

	media := make(map[string]string, len(tiles))
	for _, t := range tiles {
		media[t.RemoteID] = strings.Join(t.Kinds, "+")
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Peer", "Role", "State", "Negotiations", "Pending ICE", "Media"})
	for _, l := range links {
		m := media[l.RemoteID]
		if m == "" {
			m = "-"
		}
		tw.AppendRow(table.Row{shortID(l.RemoteID), l.Role, l.State, l.Negotiations, l.Pending, m})
	}
	tw.SetCaption(fmt.Sprintf("%d peer(s)", len(links)))
	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
