package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"appsync/pkg/apperr"
	"appsync/pkg/timex"
	"appsync/pkg/validate"
)

const (
	MaxKindLen  = 50
	MaxTitleLen = 200
)

// Record is one owned app data entry.
type Record struct {
	ID        int64
	OwnerID   int64
	Kind      string
	Title     *string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

type recordJSON struct {
	ID        int64   `json:"id"`
	OwnerID   int64   `json:"user_id"`
	Kind      string  `json:"type"`
	Title     *string `json:"title"`
	Body      string  `json:"content"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Version   int64   `json:"version"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		CreatedAt: timex.Format(r.CreatedAt),
		UpdatedAt: timex.Format(r.UpdatedAt),
		Version:   r.Version,
	})
}

// IsOwnedBy is the single ownership check every mutation path goes through.
func IsOwnedBy(r *Record, ownerID int64) bool {
	return r != nil && r.OwnerID == ownerID
}

// CreateInput holds the fields of a record about to be inserted.
type CreateInput struct {
	Kind  string
	Title *string
	Body  string
}

// Patch lists the fields an update overwrites. Title.Null clears the title.
type Patch struct {
	Kind  Optional[string]
	Title Optional[string]
	Body  Optional[string]
}

func (p Patch) Empty() bool {
	return !p.Kind.Set && !p.Title.Set && !p.Body.Set
}

// Apply returns a copy of r with the patch applied.
func (p Patch) Apply(r Record) Record {
	if p.Kind.Present() {
		r.Kind = p.Kind.Value
	}
	if p.Title.Set {
		if p.Title.Null {
			r.Title = nil
		} else {
			t := p.Title.Value
			r.Title = &t
		}
	}
	if p.Body.Present() {
		r.Body = p.Body.Value
	}
	return r
}

func (in CreateInput) Validate() error {
	if err := validateKind(in.Kind); err != nil {
		return err
	}
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return err
		}
	}
	return nil
}

func (p Patch) Validate() error {
	if p.Kind.Set {
		if p.Kind.Null {
			return apperr.Validation("type cannot be null")
		}
		if err := validateKind(p.Kind.Value); err != nil {
			return err
		}
	}
	if p.Body.Set && p.Body.Null {
		return apperr.Validation("content cannot be null")
	}
	if p.Title.Present() {
		if err := validateTitle(p.Title.Value); err != nil {
			return err
		}
	}
	return nil
}

// The values are checked with validate.Var: Optional fields cannot carry
// struct tags that tell an omitted field from a null one.
var (
	kindRule  = fmt.Sprintf("max=%d", MaxKindLen)
	titleRule = fmt.Sprintf("max=%d", MaxTitleLen)
)

func validateKind(kind string) error {
	// Blank counts as missing.
	if err := validate.Var("type", strings.TrimSpace(kind), "required"); err != nil {
		return err
	}
	return validate.Var("type", kind, kindRule)
}

func validateTitle(title string) error {
	return validate.Var("title", title, titleRule)
}

// Page selects a slice of an owner's records, newest first.
type Page struct {
	Kind   string
	Limit  int
	Offset int
}

// CreateRequest is the body of POST /api/data.
type CreateRequest struct {
	Kind  Optional[string] `json:"type"`
	Title Optional[string] `json:"title"`
	Body  Optional[string] `json:"content"`
}

// Input validates the required fields and returns the insert input.
func (r CreateRequest) Input() (CreateInput, error) {
	var missing []string
	if !r.Kind.Present() {
		missing = append(missing, "type")
	}
	if !r.Body.Present() {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return CreateInput{}, apperr.Validation("missing required fields: " + strings.Join(missing, ", "))
	}
	in := CreateInput{Kind: r.Kind.Value, Body: r.Body.Value}
	if r.Title.Present() {
		t := r.Title.Value
		in.Title = &t
	}
	return in, in.Validate()
}

// UpdateRequest is the body of PUT /api/data/{id}.
type UpdateRequest struct {
	Kind  Optional[string] `json:"type"`
	Title Optional[string] `json:"title"`
	Body  Optional[string] `json:"content"`
}

func (r UpdateRequest) Patch() Patch {
	return Patch{Kind: r.Kind, Title: r.Title, Body: r.Body}
}
