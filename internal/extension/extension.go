// Package extension describes the two interchangeable vector-search Postgres
// extensions and the vector indexes that depend on them.
package extension

import (
	"fmt"
	"strings"

	"arc-framework/dbboot/internal/version"
)

// Kind is the SQL name of a vector extension. Exactly one kind is active per
// deployment.
type Kind string

const (
	// PgVectoRS is pgvecto.rs, installed as the "vectors" extension.
	PgVectoRS Kind = "vectors"
	// PgVector is pgvector, installed as the "vector" extension.
	PgVector Kind = "vector"
)

// Kinds lists every supported extension.
var Kinds = []Kind{PgVectoRS, PgVector}

// ParseKind accepts either the display name or the SQL name of an extension.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pgvecto.rs", "pgvectors", "vectors":
		return PgVectoRS, nil
	case "pgvector", "vector":
		return PgVector, nil
	default:
		return "", fmt.Errorf("unknown vector extension %q (want pgvecto.rs or pgvector)", s)
	}
}

// DisplayName is the name operators know the extension by.
func (k Kind) DisplayName() string {
	switch k {
	case PgVectoRS:
		return "pgvecto.rs"
	case PgVector:
		return "pgvector"
	default:
		return string(k)
	}
}

// Other returns the alternate implementation.
func (k Kind) Other() Kind {
	if k == PgVectoRS {
		return PgVector
	}
	return PgVectoRS
}

// Schema is the schema the extension installs its objects into, if any.
func (k Kind) Schema() string {
	if k == PgVectoRS {
		return "vectors"
	}
	return ""
}

func (k Kind) String() string { return string(k) }

// Spec is the per-deployment description of the active extension: which one,
// which versions are supported and how far it may be upgraded automatically.
type Spec struct {
	Kind  Kind
	Range version.Range
	Pin   Pin
}

// Name is a shorthand for Kind.DisplayName.
func (s Spec) Name() string { return s.Kind.DisplayName() }

// Index identifies a vector index that depends on the active extension.
type Index string

const (
	// ClipIndex is the image embedding similarity index.
	ClipIndex Index = "clip_index"
	// FaceIndex is the face embedding similarity index.
	FaceIndex Index = "face_index"
)

// Indexes is the fixed order in which indexes are checked and rebuilt.
var Indexes = []Index{ClipIndex, FaceIndex}

// Table is the table the index is built over.
func (i Index) Table() string {
	switch i {
	case ClipIndex:
		return "smart_search"
	case FaceIndex:
		return "face_search"
	default:
		return ""
	}
}

func (i Index) String() string { return string(i) }
