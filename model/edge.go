package model

import (
	"strings"
	"time"

	"github.com/siherrmann/memoria/helper"
)

// RelationType labels a relation edge.
type RelationType string

const (
	RelationTypeRelatedTo     RelationType = "related_to"
	RelationTypeDependsOn     RelationType = "depends_on"
	RelationTypeAppliesTo     RelationType = "applies_to"
	RelationTypeSupersedes    RelationType = "supersedes"
	RelationTypeConflictsWith RelationType = "conflicts_with"
	RelationTypeDerivedFrom   RelationType = "derived_from"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionBoth     Direction = "both"
)

// ParseDirection parses a direction; empty means both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DirectionBoth, nil
	case DirectionForward, DirectionBackward, DirectionBoth:
		return d, nil
	}
	return "", helper.Errorf(helper.ErrInvalidInput, "unknown direction %q", s)
}

// Forward reports whether d follows outgoing edges.
func (d Direction) Forward() bool {
	return d == DirectionForward || d == DirectionBoth
}

// Backward reports whether d follows incoming edges.
func (d Direction) Backward() bool {
	return d == DirectionBackward || d == DirectionBoth
}

// NodeRef identifies a node of the relation graph.
type NodeRef struct {
	Type EntryType `json:"type"`
	ID   string    `json:"id"`
}

func (n NodeRef) String() string {
	return string(n.Type) + ":" + n.ID
}

// Relation is a directed, typed edge between two nodes.
type Relation struct {
	ID           string       `json:"id"`
	SourceType   EntryType    `json:"source_type"`
	SourceID     string       `json:"source_id"`
	RelationType RelationType `json:"relation_type"`
	TargetType   EntryType    `json:"target_type"`
	TargetID     string       `json:"target_id"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Source returns the source node.
func (r *Relation) Source() NodeRef {
	return NodeRef{Type: r.SourceType, ID: r.SourceID}
}

// Target returns the target node.
func (r *Relation) Target() NodeRef {
	return NodeRef{Type: r.TargetType, ID: r.TargetID}
}

const (
	MinTraversalDepth          = 1
	MaxTraversalDepth          = 5
	DefaultTraversalMaxResults = 100
)

// ClampDepth limits a hop depth to [MinTraversalDepth, MaxTraversalDepth].
func ClampDepth(depth int) int {
	return min(max(depth, MinTraversalDepth), MaxTraversalDepth)
}

// TraversalQuery describes a bounded walk of the relation graph.
// An empty RelationType follows every edge.
type TraversalQuery struct {
	Start        NodeRef      `json:"start"`
	Direction    Direction    `json:"direction"`
	Depth        int          `json:"depth"`
	RelationType RelationType `json:"relation_type,omitempty"`
	MaxResults   int          `json:"max_results"`
}

// Normalize clamps the depth and fills in the default direction and cap.
func (q TraversalQuery) Normalize() TraversalQuery {
	q.Depth = ClampDepth(q.Depth)
	if q.Direction == "" {
		q.Direction = DirectionBoth
	}
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultTraversalMaxResults
	}
	return q
}

// ReachableNodes holds the nodes found by a traversal, one id list per
// content entry type, in discovery order.
type ReachableNodes struct {
	ByType   map[EntryType][]string `json:"by_type"`
	Strategy string                 `json:"strategy,omitempty"`
	FellBack bool                   `json:"fell_back,omitempty"`

	order []NodeRef
	seen  map[NodeRef]struct{}
}

// NewReachableNodes returns an empty result with one set per entry type.
func NewReachableNodes() *ReachableNodes {
	byType := make(map[EntryType][]string, len(EntryTypes))
	for _, t := range EntryTypes {
		byType[t] = []string{}
	}
	return &ReachableNodes{
		ByType: byType,
		seen:   map[NodeRef]struct{}{},
	}
}

// Add records a node. Nodes that are not content entries and duplicates
// are ignored; the return value reports whether the node was added.
func (r *ReachableNodes) Add(node NodeRef) bool {
	if !node.Type.Valid() {
		return false
	}
	if _, ok := r.seen[node]; ok {
		return false
	}
	r.seen[node] = struct{}{}
	r.order = append(r.order, node)
	r.ByType[node.Type] = append(r.ByType[node.Type], node.ID)
	return true
}

// Contains reports whether node was reached.
func (r *ReachableNodes) Contains(node NodeRef) bool {
	_, ok := r.seen[node]
	return ok
}

// IDs returns the ids reached for one entry type.
func (r *ReachableNodes) IDs(t EntryType) []string {
	return r.ByType[t]
}

// Nodes returns all reached nodes in discovery order.
func (r *ReachableNodes) Nodes() []NodeRef {
	return r.order
}

// Len returns the number of reached nodes.
func (r *ReachableNodes) Len() int {
	return len(r.order)
}
