package core

import (
	"fmt"
	"slices"
	"strings"
)

// Inspect renders the sessions, tables and anomaly counters of the router as text
func (r *Router) Inspect() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Router %s (AS %d, id %s) at %s\n", r.Name, r.AS, r.Identifier, r.Clock.Now()))

	sb.WriteString("Sessions:\n")
	for _, info := range r.Sessions.Snapshot() {
		sb.WriteString(fmt.Sprintf(" - if %d -> %s\n", info.Interface, info.Neighbor))
		if info.Valid {
			sb.WriteString(fmt.Sprintf("   Established: %s (peer %s, AS %d)\n", info.EstablishedAt, info.PeerId, info.PeerAS))
		} else {
			sb.WriteString("   Down\n")
		}
		sb.WriteString(fmt.Sprintf("   Times established: %d, expired: %d\n", info.Established, info.Expired))
	}

	sb.WriteString("\nMain Table:\n")
	rt := make([]string, 0)
	for _, route := range r.Table.MainRoutes() {
		rt = append(rt, fmt.Sprintf(" - %s", route))
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	sb.WriteString("\nRaw Table:\n")
	rt = make([]string, 0)
	for _, route := range r.Table.RawRoutes() {
		rt = append(rt, fmt.Sprintf(" - %s", route))
	}
	if len(rt) == 0 {
		rt = append(rt, " (none)")
	}
	sb.WriteString(strings.Join(rt, "\n") + "\n")

	anomalies := r.Sessions.Anomalies()
	if len(anomalies) != 0 {
		sb.WriteString("\nAnomalies:\n")
		rt = make([]string, 0)
		for kind, n := range anomalies {
			rt = append(rt, fmt.Sprintf(" - %s: %d", kind, n))
		}
		slices.Sort(rt)
		sb.WriteString(strings.Join(rt, "\n") + "\n")
	}
	return sb.String()
}
