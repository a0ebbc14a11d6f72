package forge

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// SVFMime is the mime type of scene package derivatives.
const SVFMime = "application/autodesk-svf"

// Manifest is the part of a derivative manifest needed for extraction.
type Manifest struct {
	URN         string `json:"urn"`
	Status      string `json:"status"`
	Progress    string `json:"progress"`
	Derivatives []Node `json:"derivatives"`
}

// Node is one entry of the manifest derivative tree.
type Node struct {
	GUID     string `json:"guid"`
	Type     string `json:"type"`
	Role     string `json:"role"`
	Mime     string `json:"mime"`
	URN      string `json:"urn"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Children []Node `json:"children"`
}

// ParseManifest decodes a raw manifest.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	return &m, nil
}

// Search returns every node, depth first in document order, for which match
// returns true.
func (m *Manifest) Search(match func(Node) bool) []Node {
	var out []Node
	var walk func([]Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if match(n) {
				out = append(out, n)
			}
			walk(n.Children)
		}
	}
	walk(m.Derivatives)
	return out
}

// SVFViewables returns the graphics resources stored as scene packages.
func (m *Manifest) SVFViewables() []Node {
	return m.Search(func(n Node) bool {
		return n.Type == "resource" && n.Role == "graphics" && n.Mime == SVFMime
	})
}
