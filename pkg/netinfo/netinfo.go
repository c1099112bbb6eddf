package netinfo

import (
	"fmt"
	"net"
	"sort"

	"github.com/vishvananda/netlink"
)

type Interface struct {
	Name    string `json:"name"`
	Up      bool   `json:"up"`
	RxBytes uint64 `json:"rxBytes"`
	TxBytes uint64 `json:"txBytes"`
}

// Reader lists host network links through netlink.
type Reader struct {
	linkList func() ([]netlink.Link, error)
}

func NewReader() *Reader {
	return &Reader{linkList: netlink.LinkList}
}

// Interfaces returns non-loopback links sorted by name.
func (r *Reader) Interfaces() ([]Interface, error) {
	links, err := r.linkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	out := make([]Interface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || attrs.Flags&net.FlagLoopback != 0 {
			continue
		}

		iface := Interface{
			Name: attrs.Name,
			Up:   isUp(attrs),
		}
		if attrs.Statistics != nil {
			iface.RxBytes = attrs.Statistics.RxBytes
			iface.TxBytes = attrs.Statistics.TxBytes
		}
		out = append(out, iface)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// isUp treats tunnels that report an unknown oper state as up when the
// admin flag is set.
func isUp(attrs *netlink.LinkAttrs) bool {
	if attrs.OperState == netlink.OperUp {
		return true
	}
	return attrs.OperState == netlink.OperUnknown && attrs.Flags&net.FlagUp != 0
}
