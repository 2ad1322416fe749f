// Package hierarchy walks the category > section > subsection > topic tree.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
)

// DefaultMaxDepth bounds a walk when no limit is configured.
const DefaultMaxDepth = 32

// ErrCycle marks a parent chain that returns to a section already visited.
var ErrCycle = errors.New("section hierarchy cycle")

// Source is the subset of the store the walk reads.
type Source interface {
	Category(ctx context.Context, id uint) (*model.Category, error)
	Section(ctx context.Context, id uint) (*model.Section, error)
	Topic(ctx context.Context, id uint) (*model.Topic, error)
}

type Resolver struct {
	src      Source
	maxDepth int
}

func NewResolver(src Source, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{src: src, maxDepth: maxDepth}
}

// Path is a section with every parent section above it, most specific first,
// and the category the topmost one belongs to.
type Path struct {
	Sections   []model.Section
	CategoryID uint
}

// Refs flattens the path into entity references ending with the category.
func (p *Path) Refs() []model.EntityRef {
	refs := make([]model.EntityRef, 0, len(p.Sections)+1)
	for _, sec := range p.Sections {
		refs = append(refs, model.EntityRef{Type: model.EntitySection, ID: sec.ID})
	}
	return append(refs, model.EntityRef{Type: model.EntityCategory, ID: p.CategoryID})
}

// Walk loads sectionID and its parents up to the owning category. Cycles,
// dangling parents, orphans and chains deeper than the bound are
// configuration errors.
func (r *Resolver) Walk(ctx context.Context, sectionID uint) (*Path, error) {
	path := &Path{Sections: make([]model.Section, 0, 4)}
	seen := make(map[uint]bool)
	id := sectionID
	for depth := 0; ; depth++ {
		if depth >= r.maxDepth {
			return nil, apperr.Configf("section %d: hierarchy deeper than %d", sectionID, r.maxDepth)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %w: section %d revisited from section %d", apperr.ErrConfiguration, ErrCycle, id, sectionID)
		}
		seen[id] = true

		sec, err := r.src.Section(ctx, id)
		if err != nil {
			if depth > 0 && errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Configf("section %d has a dangling parent %d", path.Sections[len(path.Sections)-1].ID, id)
			}
			return nil, err
		}
		path.Sections = append(path.Sections, *sec)

		switch {
		case sec.ParentSectionID != nil:
			id = *sec.ParentSectionID
		case sec.CategoryID != nil:
			path.CategoryID = *sec.CategoryID
			return path, nil
		default:
			return nil, apperr.Configf("section %d has neither a parent section nor a category", sec.ID)
		}
	}
}

// SectionChain returns the section itself, then each parent section, ending
// with the owning category.
func (r *Resolver) SectionChain(ctx context.Context, sectionID uint) ([]model.EntityRef, error) {
	path, err := r.Walk(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	return path.Refs(), nil
}

// Chain returns ref followed by its ancestors, most specific first.
func (r *Resolver) Chain(ctx context.Context, ref model.EntityRef) ([]model.EntityRef, error) {
	switch ref.Type {
	case model.EntityCategory:
		if _, err := r.src.Category(ctx, ref.ID); err != nil {
			return nil, err
		}
		return []model.EntityRef{ref}, nil
	case model.EntitySection:
		return r.SectionChain(ctx, ref.ID)
	case model.EntityTopic:
		topic, err := r.src.Topic(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		chain, err := r.SectionChain(ctx, topic.SectionID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Configf("topic %d references missing section %d", topic.ID, topic.SectionID)
			}
			return nil, err
		}
		return append([]model.EntityRef{ref}, chain...), nil
	}
	return nil, apperr.Configf("unknown entity type %q", ref.Type)
}

// Ancestors returns the chain above ref, most specific first. A topic's chain
// starts at its section.
func (r *Resolver) Ancestors(ctx context.Context, ref model.EntityRef) ([]model.EntityRef, error) {
	chain, err := r.Chain(ctx, ref)
	if err != nil {
		return nil, err
	}
	return chain[1:], nil
}

// CategoryOf returns the id of the category owning ref.
func (r *Resolver) CategoryOf(ctx context.Context, ref model.EntityRef) (uint, error) {
	chain, err := r.Chain(ctx, ref)
	if err != nil {
		return 0, err
	}
	return chain[len(chain)-1].ID, nil
}

// ValidateMove rejects re-parenting sectionID under newParent when that would
// make the section its own ancestor.
func (r *Resolver) ValidateMove(ctx context.Context, sectionID uint, newParent model.EntityRef) error {
	switch newParent.Type {
	case model.EntityCategory:
		return nil
	case model.EntitySection:
	default:
		return apperr.Invalidf("a section cannot be placed under a %s", newParent.Type)
	}
	if newParent.ID == sectionID {
		return fmt.Errorf("%w: %w: section %d cannot be its own parent", apperr.ErrInvalidInput, ErrCycle, sectionID)
	}
	chain, err := r.SectionChain(ctx, newParent.ID)
	if err != nil {
		return err
	}
	for _, node := range chain {
		if node.Type == model.EntitySection && node.ID == sectionID {
			return fmt.Errorf("%w: %w: section %d is an ancestor of section %d", apperr.ErrInvalidInput, ErrCycle, sectionID, newParent.ID)
		}
	}
	return nil
}
