package tmplet

import (
	"errors"
	"fmt"
)

var (
	ErrBlockCycle          = errors.New("tmplet: cyclic block reference")
	ErrNestedDefine        = errors.New("tmplet: block define inside another block define")
	ErrUnterminatedDefine  = errors.New("tmplet: missing {{< }} after block define")
	ErrUnexpectedDefineEnd = errors.New("tmplet: {{< }} without a block define")
)

// ResolveBlocks removes every block define from frags and substitutes each placeholder with the
// body defined for its name. All defines are captured before any placeholder is replaced, so a
// placeholder may precede its define. A later define of the same name replaces an earlier one.
// Placeholders with no define are dropped.
func ResolveBlocks(frags []Fragment) ([]Fragment, error) {
	blocks := map[string][]Fragment{}
	rest := make([]Fragment, 0, len(frags))
	for i := 0; i < len(frags); i++ {
		f := frags[i]
		switch f.Kind {
		case KindDefineEnd:
			return nil, fmt.Errorf("%w at line %d", ErrUnexpectedDefineEnd, f.Line)
		case KindDefine:
			end := -1
			for j := i + 1; j < len(frags) && end < 0; j++ {
				switch frags[j].Kind {
				case KindDefine:
					return nil, fmt.Errorf("%w: %q at line %d", ErrNestedDefine, frags[j].Name, frags[j].Line)
				case KindDefineEnd:
					end = j
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("%w: %q at line %d", ErrUnterminatedDefine, f.Name, f.Line)
			}
			blocks[f.Name] = frags[i+1 : end]
			i = end
		default:
			rest = append(rest, f)
		}
	}
	if len(blocks) == 0 {
		return dropPlaceholders(rest), nil
	}
	r := &blockResolver{blocks: blocks, active: map[string]struct{}{}}
	return r.expand(rest, make([]Fragment, 0, len(rest)))
}

type blockResolver struct {
	blocks map[string][]Fragment
	// active holds the blocks currently being expanded
	active map[string]struct{}
}

func (r *blockResolver) expand(frags []Fragment, out []Fragment) ([]Fragment, error) {
	for _, f := range frags {
		if f.Kind != KindPlaceholder {
			out = append(out, f)
			continue
		}
		body, ok := r.blocks[f.Name]
		if !ok {
			continue
		}
		if _, ok := r.active[f.Name]; ok {
			return nil, fmt.Errorf("%w: %q at line %d", ErrBlockCycle, f.Name, f.Line)
		}
		r.active[f.Name] = struct{}{}
		var err error
		out, err = r.expand(body, out)
		if err != nil {
			return nil, err
		}
		delete(r.active, f.Name)
	}
	return out, nil
}

func dropPlaceholders(frags []Fragment) []Fragment {
	out := frags[:0]
	for _, f := range frags {
		if f.Kind != KindPlaceholder {
			out = append(out, f)
		}
	}
	return out
}
