package domain

import (
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a generation request.
type ProjectStatus string

const (
	StatusPending ProjectStatus = "PENDING"
	StatusDone    ProjectStatus = "DONE"
	StatusError   ProjectStatus = "ERROR"
)

// DiagramKind is the closed set of UML diagram kinds the generator can produce.
type DiagramKind string

const (
	KindClass     DiagramKind = "CLASS"
	KindSequence  DiagramKind = "SEQUENCE"
	KindActivity  DiagramKind = "ACTIVITY"
	KindUseCase   DiagramKind = "USE_CASE"
	KindState     DiagramKind = "STATE"
	KindComponent DiagramKind = "COMPONENT"
)

// AllKinds lists every supported kind in a stable order.
var AllKinds = []DiagramKind{KindClass, KindSequence, KindActivity, KindUseCase, KindState, KindComponent}

func (k DiagramKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind accepts the canonical names plus the lowercase / hyphenated forms
// LLMs tend to echo back ("use-case", "usecase", "class diagram").
func ParseKind(s string) (DiagramKind, bool) {
	n := strings.ToUpper(strings.TrimSpace(s))
	n = strings.TrimSuffix(n, " DIAGRAM")
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	if n == "USECASE" {
		n = string(KindUseCase)
	}
	k := DiagramKind(n)
	return k, k.Valid()
}

// Dialect is the diagram source language; it selects the render backend.
type Dialect string

const (
	DialectPlantUML Dialect = "PLANTUML"
	DialectMermaid  Dialect = "MERMAID"
)

func (d Dialect) Valid() bool {
	return d == DialectPlantUML || d == DialectMermaid
}

// ParseDialect returns DialectPlantUML for an empty string.
func ParseDialect(s string) (Dialect, bool) {
	if strings.TrimSpace(s) == "" {
		return DialectPlantUML, true
	}
	d := Dialect(strings.ToUpper(strings.TrimSpace(s)))
	return d, d.Valid()
}

// Project is one user request to generate a set of diagrams from a description.
type Project struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Prompt       string        `json:"prompt"`
	Status       ProjectStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	OwnerUID     *string       `json:"owner_uid,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	Diagrams []Diagram `json:"diagrams,omitempty"`
	// Warnings carries non-fatal notes from generation, e.g. kinds the
	// generator did not honor. Not persisted.
	Warnings []string `json:"warnings,omitempty"`
}

// OwnedBy reports whether uid may act on the project. Unowned projects are open.
func (p *Project) OwnedBy(uid string) bool {
	if p.OwnerUID == nil || *p.OwnerUID == "" {
		return true
	}
	return *p.OwnerUID == uid
}

// Diagram is one UML artifact of a project. CurrentVersionID is a
// non-owning pointer into the diagram's own version history.
type Diagram struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"project_id"`
	Kind             DiagramKind `json:"kind"`
	Dialect          Dialect     `json:"dialect"`
	Title            string      `json:"title"`
	CurrentVersionID *string     `json:"current_version_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`

	CurrentVersion *DiagramVersion `json:"current_version,omitempty"`
}

// DiagramVersion is an immutable snapshot of a diagram's source.
type DiagramVersion struct {
	ID            string    `json:"id"`
	DiagramID     string    `json:"diagram_id"`
	VersionNumber int       `json:"version_number"`
	DSL           string    `json:"dsl"`
	ImageURL      *string   `json:"image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DiagramContext is what regeneration needs: the diagram, its project, and
// its highest-numbered version (nil when the diagram has none).
type DiagramContext struct {
	Diagram Diagram
	Project Project
	Latest  *DiagramVersion
}

// NewVersionInput describes a version to append to a diagram.
type NewVersionInput struct {
	DiagramID     string
	VersionNumber int
	DSL           string
	ImageURL      *string
	// Title, when non-empty, replaces the diagram's title in the same transaction.
	Title string
}

// NewDiagramInput describes a diagram created together with its first version.
type NewDiagramInput struct {
	ProjectID string
	Kind      DiagramKind
	Dialect   Dialect
	Title     string
	DSL       string
	ImageURL  *string
}

// BulkRequest asks the generator for one diagram per kind.
type BulkRequest struct {
	Prompt  string
	Kinds   []DiagramKind
	Dialect Dialect
}

// SingleRequest asks the generator to rework one diagram given its previous source.
type SingleRequest struct {
	Prompt         string
	Kind           DiagramKind
	Dialect        Dialect
	PreviousSource string
}

// GeneratedDiagram is one diagram source returned by the generator.
type GeneratedDiagram struct {
	Kind   DiagramKind `json:"kind"`
	Title  string      `json:"title"`
	Source string      `json:"source"`
}
